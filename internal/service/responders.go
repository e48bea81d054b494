package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/event"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/logger"
)

// Request params understood by the responders.
const (
	ParamUserID = "user_id"
	ParamType   = "type"
	ParamLimit  = "limit"
	ParamOffset = "offset"
)

// Responders answers enrichment requests on behalf of the user, interaction,
// comment and bookmark modules. A responder that fails does not reply, and
// the waiting side degrades to an empty fragment on its deadline.
type Responders struct {
	profiles     *ProfileCache
	interactions repository.InteractionRepository
	comments     repository.CommentRepository
	bookmarks    repository.BookmarkRepository
	replier      correlation.Replier
	log          *zap.Logger
}

func NewResponders(
	profiles *ProfileCache,
	interactions repository.InteractionRepository,
	comments repository.CommentRepository,
	bookmarks repository.BookmarkRepository,
	replier correlation.Replier,
	log *zap.Logger,
) *Responders {
	if log == nil {
		log = logger.L()
	}
	return &Responders{
		profiles:     profiles,
		interactions: interactions,
		comments:     comments,
		bookmarks:    bookmarks,
		replier:      replier,
		log:          log.With(zap.String("component", "responders")),
	}
}

// Register subscribes every responder on bus.
func (r *Responders) Register(bus event.Bus) {
	bus.Subscribe(correlation.KindUser, r.AnswerUsers)
	bus.Subscribe(correlation.KindInteraction, r.AnswerInteractions)
	bus.Subscribe(correlation.KindComment, r.AnswerComments)
	bus.Subscribe(correlation.KindBookmark, r.AnswerBookmarks)
}

func (r *Responders) AnswerUsers(ctx context.Context, evt correlation.RequestEvent) error {
	users, err := r.profiles.Load(ctx, evt.Targets)
	if err != nil {
		return err
	}
	return r.reply(ctx, evt, users, len(users))
}

func (r *Responders) AnswerInteractions(ctx context.Context, evt correlation.RequestEvent) error {
	rows, err := r.interactions.ListByPosts(ctx, evt.Targets, evt.Param(ParamType))
	if err != nil {
		return err
	}
	out := make([]enrich.InteractionData, len(rows))
	for i, it := range rows {
		out[i] = enrich.InteractionData{PostID: it.PostID, UserID: it.UserID, Type: it.Type, Status: it.Status}
	}
	return r.reply(ctx, evt, out, len(out))
}

func (r *Responders) AnswerComments(ctx context.Context, evt correlation.RequestEvent) error {
	rows, err := r.comments.CountByPosts(ctx, evt.Targets)
	if err != nil {
		return err
	}
	out := make([]enrich.CommentData, len(rows))
	for i, c := range rows {
		out[i] = enrich.CommentData{PostID: c.PostID, Count: c.Count}
	}
	return r.reply(ctx, evt, out, len(out))
}

// AnswerBookmarks returns the targets bookmarked by the user_id param, or,
// with no targets, a page of everything that user bookmarked.
func (r *Responders) AnswerBookmarks(ctx context.Context, evt correlation.RequestEvent) error {
	userID := evt.Param(ParamUserID)
	if userID == "" {
		return r.reply(ctx, evt, []string{}, 0)
	}

	var (
		ids []string
		err error
	)
	if len(evt.Targets) > 0 {
		ids, err = r.bookmarks.FilterBookmarked(ctx, userID, evt.Targets)
	} else {
		limit := intParam(evt, ParamLimit, 20)
		offset := intParam(evt, ParamOffset, 0)
		ids, err = r.bookmarks.ListPostIDs(ctx, userID, offset, limit)
	}
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return r.reply(ctx, evt, ids, len(ids))
}

func (r *Responders) reply(ctx context.Context, evt correlation.RequestEvent, payload any, n int) error {
	if err := r.replier.Reply(ctx, evt.ID, payload); err != nil {
		return err
	}
	r.log.Debug("request answered", zap.String("id", evt.ID.String()), zap.Int("items", n))
	return nil
}

func intParam(evt correlation.RequestEvent, key string, def int) int {
	v, err := strconv.Atoi(evt.Param(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
