package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Haibread/tempvoice/metrics"
)

// CleanupReport counts what a sweep over one guild did.
type CleanupReport struct {
	Checked        int
	Reaped         int
	OrphanChildren int
	OrphanParents  int
	Errors         int
}

func (r *CleanupReport) add(o CleanupReport) {
	r.Checked += o.Checked
	r.Reaped += o.Reaped
	r.OrphanChildren += o.OrphanChildren
	r.OrphanParents += o.OrphanParents
	r.Errors += o.Errors
}

// Sweep reaps empty children in every guild that has any. Rows whose channel is
// gone are reported, not removed; ForceCleanup removes them.
func (m *Manager) Sweep(ctx context.Context) CleanupReport {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var total CleanupReport
	guilds, err := m.store.ChildGuildIDs(ctx)
	if err != nil {
		m.log.Errorw("Failed to list guilds for sweep", "error", err)
		total.Errors++
		return total
	}
	for _, guildID := range guilds {
		if ctx.Err() != nil {
			break
		}
		total.add(m.sweepGuildSafe(ctx, guildID))
	}
	if total.Errors == 0 {
		metrics.ActiveChildren.Set(float64(total.Checked - total.Reaped))
	}
	if total.Reaped > 0 || total.OrphanChildren > 0 {
		m.log.Infow("Lifecycle sweep done", "guilds", len(guilds), "checked", total.Checked, "reaped", total.Reaped, "drift", total.OrphanChildren)
	}
	return total
}

func (m *Manager) sweepGuildSafe(ctx context.Context, guildID string) (report CleanupReport) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("Recovered from panic during sweep", "guild", guildID, "panic", r)
			report.Errors++
		}
	}()
	report, err := m.sweepGuild(ctx, guildID, false)
	if err != nil {
		m.log.Errorw("Sweep failed", "guild", guildID, "error", err)
	}
	return report
}

// ForceCleanup reconciles guildID: rows whose channel no longer resolves are
// deleted, parents included, and empty children are reaped.
func (m *Manager) ForceCleanup(ctx context.Context, guildID string) (CleanupReport, error) {
	report, err := m.sweepGuild(ctx, guildID, true)
	m.log.Infow("Force cleanup done", "guild", guildID, "checked", report.Checked, "reaped", report.Reaped,
		"orphan_children", report.OrphanChildren, "orphan_parents", report.OrphanParents, "errors", report.Errors)
	return report, err
}

func (m *Manager) sweepGuild(ctx context.Context, guildID string, reconcile bool) (CleanupReport, error) {
	var report CleanupReport
	log := m.log.With("guild", guildID)

	children, err := m.store.GetChildChannelsByGuild(ctx, guildID)
	if err != nil {
		return report, fmt.Errorf("failed to list child channels: %w", err)
	}

	var errs []error
	for i := range children {
		child := &children[i]
		channelID := child.ChannelID.String()
		report.Checked++

		_, err := m.platform.Channel(ctx, channelID)
		switch {
		case errors.Is(err, ErrChannelGone):
			report.OrphanChildren++
			if !reconcile {
				log.Warnw("Child channel row has no live channel", "channel", channelID)
				continue
			}
			m.prompts.Remove(channelID)
			if err := m.store.DeleteChildChannel(ctx, channelID); err != nil {
				report.Errors++
				errs = append(errs, err)
				continue
			}
			metrics.OrphanRowsRemoved.Inc()
			metrics.ActiveChildren.Dec()
			log.Infow("Removed orphaned child channel row", "channel", channelID)
		case err != nil:
			report.Errors++
			errs = append(errs, err)
		case len(m.platform.VoiceMembers(guildID, channelID)) == 0:
			if err := m.reap(ctx, child, "sweep", false); err != nil {
				report.Errors++
				errs = append(errs, err)
				continue
			}
			report.Reaped++
		}
	}

	if !reconcile {
		return report, errors.Join(errs...)
	}

	parents, err := m.store.GetParentChannelsByGuild(ctx, guildID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list parent channels: %w", err))
		return report, errors.Join(errs...)
	}
	for _, parent := range parents {
		channelID := parent.ChannelID.String()
		if _, err := m.platform.Channel(ctx, channelID); !errors.Is(err, ErrChannelGone) {
			if err != nil {
				report.Errors++
				errs = append(errs, err)
			}
			continue
		}
		if err := m.store.DeleteParentChannel(ctx, channelID); err != nil {
			report.Errors++
			errs = append(errs, err)
			continue
		}
		report.OrphanParents++
		metrics.OrphanRowsRemoved.Inc()
		log.Infow("Removed orphaned parent channel", "channel", channelID)
	}
	return report, errors.Join(errs...)
}
