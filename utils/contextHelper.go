package utils

import (
	"context"

	"github.com/mmdatafocus/hubsync_backend/appctx"
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

func GetCompanyCodeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCompanyCode)
}

func SetCompanyCodeInContext(ctx context.Context, companyCode string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCompanyCode, companyCode)
}

func GetSyncRunIdFromContext(ctx context.Context) (uint, bool) {
	return appctx.GetUint(ctx, appctx.ContextKeySyncRunId)
}

func SetSyncRunIdInContext(ctx context.Context, runId uint) context.Context {
	return appctx.Set(ctx, appctx.ContextKeySyncRunId, runId)
}
