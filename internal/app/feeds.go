package app

import (
	"context"
	"errors"

	"github.com/iliyamo/typing-contest/internal/contest"
	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/model"
	"github.com/iliyamo/typing-contest/internal/session"
)

// onIdentity applies an identity change: the admin flag is read from the
// profile, every feed of the previous identity is torn down and the feeds
// of the new one are opened before a new passage is requested.
func (c *Controller) onIdentity(id *model.Identity) {
	ctx := c.ctx
	var who *model.Identity
	if id != nil {
		cp := *id
		cp.IsAdmin = c.readAdmin(ctx, cp.UserID)
		who = &cp
	}

	c.mu.Lock()
	stop := c.detachLocked()
	c.subGen++
	gen := c.subGen
	c.identity = who
	if who == nil || !who.IsAdmin {
		c.useCustom = false
		c.users = nil
		c.pending = nil
	}
	if who == nil {
		c.leaderboard = nil
		c.texts = nil
	}
	if !who.HasEmail() {
		c.history = nil
	}
	if !who.HasEmail() || who.IsAdmin {
		c.ownRequests = nil
	}
	c.mu.Unlock()
	stop()
	c.emit()

	if who == nil {
		return
	}
	c.subscribe(ctx, gen, who)
	c.requestText(ctx)
}

func (c *Controller) readAdmin(ctx context.Context, uid string) bool {
	doc, err := c.d.Store.Get(ctx, c.d.Paths.Profile(uid))
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			c.d.Log.Error("read profile failed", "user_id", uid, "error", err)
		}
		return false
	}
	var p model.Profile
	if err := docstore.Decode(doc, &p); err != nil {
		c.d.Log.Error("decode profile failed", "user_id", uid, "error", err)
		return false
	}
	return p.IsAdmin
}

// detachLocked forgets the current feeds and returns a function that stops
// them. The returned function must be called without the lock.
func (c *Controller) detachLocked() func() {
	subs := c.subs
	cancel := c.subCancel
	c.subs = nil
	c.subCancel = nil
	return func() {
		if cancel != nil {
			cancel()
		}
		for _, s := range subs {
			s.Unsubscribe()
		}
	}
}

// liveFeed is one live query and what to do with its snapshots.
type liveFeed struct {
	name    string
	query   docstore.Query
	apply   func(ctx context.Context, gen uint64, docs []docstore.Document) error
	failMsg func()
}

func (c *Controller) feedsFor(who *model.Identity) []liveFeed {
	p := c.d.Paths
	feeds := []liveFeed{
		{
			name:    "leaderboard",
			query:   docstore.Query{Collection: p.Scores(), OrderBy: "wpm", Direction: docstore.Desc, Limit: LeaderboardSize},
			apply:   c.applyLeaderboard,
			failMsg: func() { c.errMsg = msgLoadLeaderboard },
		},
		{
			name:    "contest-texts",
			query:   docstore.Query{Collection: p.ContestTexts(), OrderBy: "timestamp", Direction: docstore.Desc},
			apply:   c.applyTexts,
			failMsg: func() { c.errMsg = msgLoadTexts },
		},
	}
	if who.HasEmail() {
		feeds = append(feeds, liveFeed{
			name:    "history",
			query:   docstore.Query{Collection: p.History(who.UserID), OrderBy: "timestamp", Direction: docstore.Desc, Limit: HistorySize},
			apply:   c.applyHistory,
			failMsg: func() { c.errMsg = msgLoadHistory },
		})
	}
	if who.IsAdmin {
		feeds = append(feeds,
			liveFeed{
				name:    "users",
				query:   c.admin.AllScoresQuery(),
				apply:   c.applyUsers,
				failMsg: func() { c.adminMsg = msgLoadUsers },
			},
			liveFeed{
				name:    "pending-requests",
				query:   c.contest.PendingQuery(),
				apply:   c.applyPending,
				failMsg: func() { c.adminMsg = msgLoadPending },
			},
		)
	} else if who.HasEmail() {
		feeds = append(feeds, liveFeed{
			name:    "own-requests",
			query:   c.contest.OwnQuery(who.UserID),
			apply:   c.applyOwnRequests,
			failMsg: func() { c.errMsg = msgLoadOwnRequests },
		})
	}
	return feeds
}

func (c *Controller) subscribe(ctx context.Context, gen uint64, who *model.Identity) {
	subCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if gen != c.subGen {
		c.mu.Unlock()
		cancel()
		return
	}
	c.subCancel = cancel
	c.mu.Unlock()

	for _, f := range c.feedsFor(who) {
		sub, err := c.d.Store.LiveQuery(subCtx, f.query)
		if err != nil {
			c.d.Log.Error("open feed failed", "feed", f.name, "error", err)
			c.update(gen, f.failMsg)
			continue
		}
		c.mu.Lock()
		if gen != c.subGen {
			c.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		c.subs = append(c.subs, sub)
		c.wg.Add(1)
		c.mu.Unlock()
		go c.consume(subCtx, gen, f, sub)
	}
}

func (c *Controller) consume(ctx context.Context, gen uint64, f liveFeed, sub docstore.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sub.Snapshots():
			if err := f.apply(ctx, gen, snap.Docs); err != nil {
				c.d.Log.Error("apply feed snapshot failed", "feed", f.name, "error", err)
				c.update(gen, f.failMsg)
			}
		case err := <-sub.Err():
			c.d.Log.Error("feed failed", "feed", f.name, "error", err)
			c.update(gen, f.failMsg)
		}
	}
}

// update runs fn under the lock and emits, unless the feeds of gen were
// replaced meanwhile.
func (c *Controller) update(gen uint64, fn func()) bool {
	c.mu.Lock()
	if gen != c.subGen {
		c.mu.Unlock()
		return false
	}
	fn()
	c.mu.Unlock()
	c.emit()
	return true
}

func (c *Controller) applyLeaderboard(_ context.Context, gen uint64, docs []docstore.Document) error {
	scores, err := docstore.DecodeAll(docs, func(s *model.ScoreEntry, id string) { s.ID = id })
	if err != nil {
		return err
	}
	c.update(gen, func() { c.leaderboard = scores })
	return nil
}

func (c *Controller) applyHistory(_ context.Context, gen uint64, docs []docstore.Document) error {
	hist, err := docstore.DecodeAll(docs, func(h *model.HistoryEntry, id string) { h.ID = id })
	if err != nil {
		return err
	}
	c.update(gen, func() { c.history = hist })
	return nil
}

// applyTexts replaces the contest pool. An idle player who has not started
// typing gets a passage drawn from the new pool.
func (c *Controller) applyTexts(ctx context.Context, gen uint64, docs []docstore.Document) error {
	texts, err := docstore.DecodeAll(docs, func(t *model.ContestText, id string) { t.ID = id })
	if err != nil {
		return err
	}
	reload := false
	ok := c.update(gen, func() {
		c.texts = texts
		reload = c.machine.Snapshot().Phase() == session.PhaseIdle
	})
	if ok && reload {
		c.requestText(ctx)
	}
	return nil
}

func (c *Controller) applyUsers(ctx context.Context, gen uint64, docs []docstore.Document) error {
	scores, err := docstore.DecodeAll(docs, func(s *model.ScoreEntry, id string) { s.ID = id })
	if err != nil {
		return err
	}
	users, err := c.admin.UniqueUsers(ctx, c.current(), scores)
	if err != nil {
		return err
	}
	c.update(gen, func() { c.users = users })
	return nil
}

func (c *Controller) applyPending(_ context.Context, gen uint64, docs []docstore.Document) error {
	reqs, err := contest.DecodeRequests(docs)
	if err != nil {
		return err
	}
	c.update(gen, func() { c.pending = reqs })
	return nil
}

func (c *Controller) applyOwnRequests(_ context.Context, gen uint64, docs []docstore.Document) error {
	reqs, err := contest.DecodeRequests(docs)
	if err != nil {
		return err
	}
	c.update(gen, func() { c.ownRequests = reqs })
	return nil
}
