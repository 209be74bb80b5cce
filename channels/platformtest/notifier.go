package platformtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/models"
)

// Notifier records panel and prompt calls.
type Notifier struct {
	mu     sync.Mutex
	nextID int64

	Panels    []string // child channel ids
	Refreshed []string // "<channel>:<owner>"
	Prompts   []string
	Retired   []string // prompt message ids

	PanelErr  error
	PromptErr error
}

var _ channels.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{nextID: 900000}
}

func (n *Notifier) id() string {
	n.nextID++
	return strconv.FormatInt(n.nextID, 10)
}

func (n *Notifier) PostControlPanel(_ context.Context, child *models.ChildChannel) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.PanelErr != nil {
		return "", n.PanelErr
	}
	n.Panels = append(n.Panels, child.ChannelID.String())
	return n.id(), nil
}

func (n *Notifier) RefreshControlPanel(_ context.Context, child *models.ChildChannel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Refreshed = append(n.Refreshed, child.ChannelID.String()+":"+child.OwnerID.String())
	return nil
}

func (n *Notifier) PostInheritancePrompt(_ context.Context, child *models.ChildChannel) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.PromptErr != nil {
		return "", n.PromptErr
	}
	n.Prompts = append(n.Prompts, child.ChannelID.String())
	return n.id(), nil
}

func (n *Notifier) RetireInheritancePrompt(_ context.Context, _, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Retired = append(n.Retired, messageID)
	return nil
}

// Snapshot returns copies of the recorded calls.
func (n *Notifier) Snapshot() (panels, refreshed, prompts, retired []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Panels...), append([]string(nil), n.Refreshed...),
		append([]string(nil), n.Prompts...), append([]string(nil), n.Retired...)
}
