package chat

import (
	"context"
	"sync"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/scanner"
)

// Reply is an assistant reply with its follow-up action.
type Reply struct {
	Text   string                 `json:"text"`
	Action domain.SuggestedAction `json:"suggested_action"`
}

// Service keeps one Panel per owner.
type Service struct {
	svc  ports.ScreeningService
	opts PanelOptions

	mu     sync.Mutex
	panels map[string]*Panel
}

func New(svc ports.ScreeningService, opts PanelOptions) *Service {
	return &Service{svc: svc, opts: opts, panels: map[string]*Panel{}}
}

func (s *Service) panel(owner string) *Panel {
	if owner == "" {
		owner = scanner.DefaultOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[owner]
	if !ok {
		p = NewPanel(s.svc, s.opts)
		s.panels[owner] = p
	}
	return p
}

// Suggest tags reply with its follow-up action.
func (s *Service) Suggest(reply string) Reply {
	return Reply{Text: reply, Action: SuggestAction(reply)}
}

// Attach runs an attach scan for owner and waits for its message. If ctx ends
// first the scan keeps running and its message is dropped.
func (s *Service) Attach(ctx context.Context, owner string, file ports.Upload) (Message, error) {
	ch := make(chan Message, 1)
	sess, err := s.panel(owner).Attach(ctx, file, func(m Message) { ch <- m })
	if err != nil {
		return Message{}, err
	}
	select {
	case m := <-ch:
		return m, nil
	case <-sess.Done():
		select {
		case m := <-ch:
			return m, nil
		default:
			return Message{}, ErrSuperseded
		}
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close cancels every panel's active scan.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.panels {
		p.Close()
	}
}
