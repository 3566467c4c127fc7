package cli

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/mchmarny/loanrisk/pkg/score"
)

const resultStoreSizeDefault = 16

// resultStore keeps the most recent scored batches for download.
// The oldest entry is evicted once the store is full.
type resultStore struct {
	mu    sync.Mutex
	max   int
	order []string
	items map[string][]byte
}

func newResultStore(max int) *resultStore {
	if max <= 0 {
		max = resultStoreSizeDefault
	}
	return &resultStore{
		max:   max,
		order: make([]string, 0, max),
		items: make(map[string][]byte, max),
	}
}

func (s *resultStore) put(b []byte) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.max {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, id)
	s.items[id] = b
	return id
}

func (s *resultStore) get(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[id]
	return b, ok
}

type tableView struct {
	Columns []string
	Rows    [][]string
}

func newTableView(f *frame.Frame) tableView {
	t := tableView{Columns: f.Columns()}
	for i := 0; i < f.Len(); i++ {
		row := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			v, _, err := f.Text(i, c)
			if err != nil {
				v = ""
			}
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

type batchView struct {
	Source      string
	RunID       string
	Summary     *score.Summary
	Input       tableView
	Scored      tableView
	DownloadURL string
}
