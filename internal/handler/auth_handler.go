package handler

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/access"
	"campus-care-api/internal/auth"
	"campus-care-api/internal/middleware"
	"campus-care-api/internal/model"
	"campus-care-api/internal/wire"
)

func (h *Handler) SignUp(ctx context.Context, req *wire.SignUpRequest) (*wire.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	first := h.sanitizer.Label(req.FirstName)
	last := h.sanitizer.Label(req.LastName)
	if email == "" || req.Password == "" || first == "" || last == "" {
		return nil, status.Error(codes.InvalidArgument, "all fields required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid email")
	}
	if len(req.Password) < auth.MinPasswordLen {
		return nil, status.Error(codes.InvalidArgument, "password too short")
	}
	role := h.defaultRole
	if req.Role != "" {
		r, ok := model.ParseRole(req.Role)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "unknown role")
		}
		role = r
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}

	acct := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
	}
	p := &model.Profile{
		ID:          acct.ID,
		Email:       email,
		Role:        role,
		FirstName:   first,
		LastName:    last,
		DisplayName: first + " " + last,
	}
	if role == model.RoleProvider {
		p.Specialization = h.sanitizer.Label(req.Specialization)
	}

	// a duplicate email comes back as a generic validation error
	if err := h.accounts.CreateAccount(ctx, acct, p); err != nil {
		return nil, h.fail(err)
	}
	if h.search != nil {
		h.search.IndexProvider(*p)
	}
	h.log.Info("account created", "user_id", acct.ID, "role", role)

	return h.issue(ctx, *acct, *p)
}

func (h *Handler) SignIn(ctx context.Context, req *wire.SignInRequest) (*wire.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	acct, err := h.accounts.AccountByEmail(ctx, email)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return nil, h.fail(err)
	}
	if !auth.CheckPassword(acct.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	p := h.resolver.Profile(ctx, acct.ID, acct.Email)
	return h.issue(ctx, *acct, p)
}

// Refresh rotates the refresh token. Presenting an already rotated token
// revokes every token of that user.
func (h *Handler) Refresh(ctx context.Context, req *wire.RefreshRequest) (*wire.AuthResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token required")
	}

	rt, err := h.accounts.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.fail(err)
	}
	if rt.Revoked {
		h.log.Warn("refresh token reused, revoking all sessions", "user_id", rt.UserID)
		if err := h.accounts.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			h.log.Error("revoke refresh tokens", "user_id", rt.UserID, "error", err)
		}
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}
	if rt.Expired(h.now()) {
		return nil, status.Error(codes.Unauthenticated, "refresh token expired")
	}

	acct, err := h.accounts.AccountByID(ctx, rt.UserID)
	if err != nil {
		return nil, h.fail(err)
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	newID := uuid.New().String()
	if err := h.accounts.RotateRefreshToken(ctx, rt.ID, newID, rt.UserID, hash, h.now().Add(h.refreshTTL)); err != nil {
		return nil, h.fail(err)
	}

	p := h.resolver.Profile(ctx, acct.ID, acct.Email)
	return h.respond(*acct, p, raw)
}

func (h *Handler) SignOut(ctx context.Context, _ *wire.Empty) (*wire.Empty, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.accounts.RevokeAllRefreshTokens(ctx, p.ID); err != nil {
		return nil, h.fail(err)
	}
	h.log.Info("signed out", "user_id", p.ID)
	return &wire.Empty{}, nil
}

func (h *Handler) WhoAmI(ctx context.Context, _ *wire.Empty) (*wire.Profile, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	out := wire.FromProfile(p)
	return &out, nil
}

// Authorize never fails: a caller without a valid token is signed out.
func (h *Handler) Authorize(ctx context.Context, req *wire.AuthorizeRequest) (*wire.AuthorizeResponse, error) {
	var subject access.Subject
	if p, ok := middleware.ProfileFrom(ctx); ok {
		subject.Profile = &p
	}
	allowed := make([]model.Role, 0, len(req.AllowedRoles))
	for _, r := range req.AllowedRoles {
		allowed = append(allowed, model.Role(r))
	}
	return &wire.AuthorizeResponse{Decision: access.Authorize(subject, allowed).String()}, nil
}

func (h *Handler) issue(ctx context.Context, a model.Account, p model.Profile) (*wire.AuthResponse, error) {
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	if _, err := h.accounts.CreateRefreshToken(ctx, a.ID, hash, h.now().Add(h.refreshTTL)); err != nil {
		return nil, h.fail(err)
	}
	return h.respond(a, p, raw)
}

func (h *Handler) respond(a model.Account, p model.Profile, refresh string) (*wire.AuthResponse, error) {
	tok, err := h.tokens.MakeToken(a)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := wire.FromProfile(p)
	return &wire.AuthResponse{
		AccessToken:  tok,
		RefreshToken: refresh,
		Profile:      &out,
		ExpiresIn:    int64(h.tokens.AccessTTL() / time.Second),
	}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
