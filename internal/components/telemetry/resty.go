package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty reports every request made through client to tel: a debug line
// before the request, a debug line with status and duration after it, and a broken
// report when the transport fails.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need to rely on chrono because it does not depend on the
	// absolute time, just the difference in time, which can be guaranteed to work.
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	start := time.Now()
	ctx := req.Context()

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: start,
	})
	i.tel.ReportDebug(
		report_resty_request,
		slog.Uint64("request_id", id),
		slog.String("method", req.Method),
		slog.String("url", req.URL),
	)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	reqCtx, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}

	i.tel.ReportDebug(
		report_resty_response,
		slog.Uint64("request_id", reqCtx.id),
		slog.Duration("duration", time.Since(reqCtx.startTime)),
		slog.String("status", res.Status()),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	params := []any{
		err,
		slog.String("method", req.Method),
		slog.String("url", req.URL),
	}
	reqCtx, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if ok {
		params = append(
			params,
			slog.Uint64("request_id", reqCtx.id),
			slog.Duration("duration", time.Since(reqCtx.startTime)),
		)
	}
	i.tel.ReportBroken(report_resty_response, params...)
}
