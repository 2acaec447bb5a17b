package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

// AuditObserver records the outcome of every sync in cms.sync_audit.
// Write failures are logged and never change the sync outcome.
type AuditObserver struct {
	syncer.NopObserver

	pool   *Pool
	logger zerolog.Logger
}

func NewAuditObserver(pool *Pool, logger zerolog.Logger) *AuditObserver {
	return &AuditObserver{
		pool:   pool,
		logger: logger.With().Str("component", "sync_audit").Logger(),
	}
}

func (o *AuditObserver) AfterSync(ctx context.Context, req syncer.Request, result *syncer.Result) {
	row := newAuditRow(ctx, req)
	row.Success = true
	if result != nil {
		row.GroupName = result.Group
	}
	o.write(ctx, row)
}

func (o *AuditObserver) SyncFailed(ctx context.Context, req syncer.Request, serr *syncer.Error) {
	row := newAuditRow(ctx, req)
	if serr != nil {
		row.ErrorCode = serr.Code
		row.ErrorMessage = serr.Message
	}
	o.write(ctx, row)
}

func (o *AuditObserver) write(ctx context.Context, row *SyncAudit) {
	if o == nil || o.pool == nil || o.pool.GORM() == nil {
		return
	}
	if err := o.pool.GORM().WithContext(ctx).Create(row).Error; err != nil {
		o.logger.Warn().
			Err(err).
			Str("sync_type", row.SyncType).
			Int64("source_id", row.SourceID).
			Int64("target_id", row.TargetID).
			Msg("write sync audit row")
	}
}

func newAuditRow(ctx context.Context, req syncer.Request) *SyncAudit {
	sourceLang, targetLang := req.Langs()
	row := &SyncAudit{
		SyncType:   string(req.Kind()),
		SourceID:   req.SourceID(),
		TargetID:   req.TargetID(),
		SourceLang: sourceLang,
		TargetLang: targetLang,
		CreatedAt:  time.Now().UTC(),
	}
	if taxonomyReq, ok := req.(syncer.TaxonomyRequest); ok {
		row.Taxonomy = taxonomyReq.Taxonomy
	}
	if actor, ok := syncer.ActorFromContext(ctx); ok {
		if actor.UserID > 0 {
			userID := actor.UserID
			row.UserID = &userID
		}
		row.ClientIP = actor.ClientIP
	}
	return row
}
