package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/appointment"
	"campus-care-api/internal/auth"
	"campus-care-api/internal/chat"
	"campus-care-api/internal/identity"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/middleware"
	"campus-care-api/internal/model"
	"campus-care-api/internal/notify"
	"campus-care-api/internal/search"
	"campus-care-api/internal/security"
	"campus-care-api/internal/store"
	"campus-care-api/internal/stream"
	"campus-care-api/internal/wire"
)

// Accounts is the credential side of the store.
type Accounts interface {
	CreateAccount(ctx context.Context, a *model.Account, p *model.Profile) error
	AccountByEmail(ctx context.Context, email string) (*model.Account, error)
	AccountByID(ctx context.Context, id string) (*model.Account, error)
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

type Deps struct {
	Accounts    Accounts
	Tokens      *auth.Issuer
	Resolver    *identity.Resolver
	Directory   *chat.Directory
	Stream      *chat.Stream
	Workflow    *appointment.Workflow
	Inbox       *notify.Inbox
	Search      *search.Service
	Sanitizer   *security.Sanitizer
	Metrics     *metrics.Collector
	RefreshTTL  time.Duration
	DefaultRole model.Role
	Log         *slog.Logger
}

type Handler struct {
	accounts    Accounts
	tokens      *auth.Issuer
	resolver    *identity.Resolver
	directory   *chat.Directory
	stream      *chat.Stream
	workflow    *appointment.Workflow
	inbox       *notify.Inbox
	search      *search.Service
	sanitizer   *security.Sanitizer
	metrics     *metrics.Collector
	refreshTTL  time.Duration
	defaultRole model.Role
	log         *slog.Logger
	now         func() time.Time
}

var _ CareServiceServer = (*Handler)(nil)

func New(d Deps) *Handler {
	return &Handler{
		accounts:    d.Accounts,
		tokens:      d.Tokens,
		resolver:    d.Resolver,
		directory:   d.Directory,
		stream:      d.Stream,
		workflow:    d.Workflow,
		inbox:       d.Inbox,
		search:      d.Search,
		sanitizer:   d.Sanitizer,
		metrics:     d.Metrics,
		refreshTTL:  d.RefreshTTL,
		defaultRole: d.DefaultRole,
		log:         d.Log,
		now:         time.Now,
	}
}

func caller(ctx context.Context) (model.Profile, error) {
	p, ok := middleware.ProfileFrom(ctx)
	if !ok {
		return model.Profile{}, status.Error(codes.Unauthenticated, "not signed in")
	}
	return p, nil
}

// pump forwards a live feed to the client until either side goes away.
func pump[T any, M wire.Payload](h *Handler, ss grpc.ServerStream, sub *stream.Subscription[T], conv func(T) M) error {
	defer sub.Cancel()
	ctx := ss.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-sub.C():
			if !ok {
				return h.fail(sub.Err())
			}
			if err := ss.SendMsg(conv(v)); err != nil {
				return err
			}
		}
	}
}
