package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fernwood/sprout/internal/store"
)

// Notifier fans domain events out to a parent's registered devices. Sends
// are best effort: failures are logged, expired subscriptions are pruned,
// and nothing here blocks the request path — callers run Notify* in a
// goroutine after their transaction commits.
type Notifier struct {
	service *Service
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: service,
		subs:    subs,
		logger:  logger.With("component", "push"),
	}
}

// NotifyTaskAwaitingVerify tells the parent a child finished a task.
func (n *Notifier) NotifyTaskAwaitingVerify(parentID int64, childName, taskTitle string) {
	n.send(parentID, Payload{
		Title: "Task finished",
		Body:  fmt.Sprintf("%s finished %q and is waiting for your check", childName, taskTitle),
		URL:   "/tasks",
		Tag:   "task-verify",
	})
}

// NotifyRedemptionRequested tells the parent a child wants to spend coins.
func (n *Notifier) NotifyRedemptionRequested(parentID int64, childName, rewardName string) {
	n.send(parentID, Payload{
		Title: "Reward request",
		Body:  fmt.Sprintf("%s wants to redeem %q", childName, rewardName),
		URL:   "/redemptions",
		Tag:   "redemption-request",
	})
}

// NotifyRedemptionProcessed tells the family a request was decided.
func (n *Notifier) NotifyRedemptionProcessed(parentID int64, rewardName string, approved bool) {
	verdict := "approved"
	if !approved {
		verdict = "declined"
	}
	n.send(parentID, Payload{
		Title: "Reward request " + verdict,
		Body:  fmt.Sprintf("The request for %q was %s", rewardName, verdict),
		URL:   "/redemptions",
		Tag:   "redemption-processed",
	})
}

func (n *Notifier) send(parentID int64, payload Payload) {
	if !n.service.Configured() {
		return
	}
	subs, err := n.subs.ListByParent(parentID)
	if err != nil {
		n.logger.Error("list subscriptions", "error", err, "parent_id", parentID)
		return
	}
	for i := range subs {
		if err := n.service.Send(&subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := n.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					n.logger.Error("prune expired subscription", "error", err)
				}
				continue
			}
			n.logger.Warn("send notification", "error", err, "parent_id", parentID)
		}
	}
}
