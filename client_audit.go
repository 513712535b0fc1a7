package authclient

import (
	"context"
	"errors"
	"time"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrRefreshFailed  AuditErrorCode = "refresh_failed"
	auditErrNoRefreshToken AuditErrorCode = "no_refresh_token"
	auditErrAuthFailed     AuditErrorCode = "auth_failed"
	auditErrForbidden      AuditErrorCode = "forbidden"
	auditErrNotFound       AuditErrorCode = "not_found"
	auditErrServer         AuditErrorCode = "server_error"
	auditErrRequest        AuditErrorCode = "request_rejected"
	auditErrNetwork        AuditErrorCode = "network_error"
	auditErrMalformed      AuditErrorCode = "malformed_response"
	auditErrCanceled       AuditErrorCode = "canceled"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(ctx context.Context, event AuditEvent, err error) {
	if c == nil || c.audit == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.Success = err == nil
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	c.audit.Emit(ctx, event)
}

func (c *Client) emitCallAudit(ctx context.Context, eventType string, cl *call, status int, err error) {
	c.emitAudit(ctx, AuditEvent{
		EventType: eventType,
		RequestID: cl.requestID,
		Method:    cl.req.Method,
		Path:      cl.req.Path,
		Status:    status,
		Attempt:   cl.attempt,
	}, err)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRefreshFailed):
		return auditErrRefreshFailed
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrAuthFailed):
		return auditErrAuthFailed
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrServer):
		return auditErrServer
	case errors.Is(err, ErrRequest):
		return auditErrRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrMalformedResponse):
		return auditErrMalformed
	default:
		return auditErrInternal
	}
}
