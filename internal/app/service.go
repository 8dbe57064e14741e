// Package app ties the moderation core, authentication and the ambient
// services together behind the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"mango/internal/auth"
	"mango/internal/authpw"
	"mango/internal/config"
	"mango/internal/export"
	"mango/internal/moderation"
	"mango/internal/rbac"
	"mango/internal/search"
	"mango/internal/store"
	"mango/internal/util"
)

// Session is one authenticated (or anonymous-login) browser session.
type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	UserName     string
	Moderator    bool
	Locked       bool
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Caller() moderation.Caller {
	return moderation.Caller{
		UserID:    s.UserID,
		Name:      s.UserName,
		Moderator: s.Moderator,
		Locked:    s.Locked,
	}
}

func (s Session) Role() rbac.Role {
	return rbac.RoleFor(s.UserID != 0, s.Moderator)
}

// userDirectory is the slice of the user store the service needs.
type userDirectory interface {
	GetUserByID(ctx context.Context, id int64) (store.User, bool, error)
	CreateAnonymous(ctx context.Context, name string) (store.User, error)
	TouchLastSeen(ctx context.Context, id int64) error
}

// sessionStore holds refresh sessions. Redis in production, Postgres as
// the fallback when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// moderationCore is the cross-kind moderation surface. *moderation.Core
// satisfies it; tests substitute fakes.
type moderationCore interface {
	PutLink(ctx context.Context, caller moderation.Caller, aKind, bKind string, aID, bID int64) (moderation.LinkResult, error)
	DeleteLink(ctx context.Context, caller moderation.Caller, aKind, bKind string, aID, bID int64) error
	LiveLinks(ctx context.Context, kind string, id int64) (map[string][]store.LinkPair, error)
	ModerationQueue(ctx context.Context, caller moderation.Caller) (moderation.Queue, error)
	History(ctx context.Context, caller moderation.Caller, limit, offset int) ([]store.HistoryItem, error)
}

type searchService interface {
	Search(q search.Query) search.Response
}

type entityCache interface {
	GetEntity(ctx context.Context, kind string, id int64) ([]byte, bool, error)
	SetEntity(ctx context.Context, kind string, id int64, payload []byte) error
	Ping(ctx context.Context) error
}

type mailer interface {
	IsConfigured() bool
	SendSubmissionNotice(to []string, author, kind, queueURL string) error
	SendWelcomeEmail(to, userName, siteURL string) error
}

type exporter interface {
	Run(ctx context.Context) ([]export.Result, error)
}

type Service struct {
	cfg      config.Config
	db       *sql.DB
	users    userDirectory
	sessions sessionStore
	core     moderationCore
	entities map[string]entityAPI

	passwords *authpw.Service
	search    searchService
	cache     entityCache
	mail      mailer
	export    exporter
}

func New(cfg config.Config, db *sql.DB, users userDirectory, sessions sessionStore, core moderationCore) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		users:    users,
		sessions: sessions,
		core:     core,
		entities: make(map[string]entityAPI),
	}
}

// Optional services; nil-safe when never set.

func (s *Service) SetPasswordAuth(a *authpw.Service) { s.passwords = a }
func (s *Service) SetSearch(svc searchService)       { s.search = svc }
func (s *Service) SetCache(c entityCache)            { s.cache = c }
func (s *Service) SetMailer(m mailer)                { s.mail = m }
func (s *Service) SetExporter(e exporter)            { s.export = e }

func (s *Service) registerEntity(api entityAPI) {
	s.entities[api.Kind()] = api
}

func (s *Service) entity(kind string) (entityAPI, bool) {
	api, ok := s.entities[kind]
	return api, ok
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Service) CachePing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// --- sessions ---

// Login creates an anonymous contributor session. The visitor gets a
// throwaway user row so every version they author has a referent; the
// reaper collects the row later if they never contribute.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	if name == "" {
		name = "visitor-" + util.NewID("")
	}
	user, err := s.users.CreateAnonymous(ctx, name)
	if err != nil {
		return Session{}, fmt.Errorf("create anonymous user: %w", err)
	}
	return s.establishSession(ctx, user)
}

// SignUp registers an email/password account and opens a session.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Password authentication not configured", nil)
	}
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	if s.mail != nil && s.mail.IsConfigured() && user.Email != "" {
		go func() {
			if err := s.mail.SendWelcomeEmail(user.Email, user.Name, s.cfg.SiteURL); err != nil {
				log.Printf("app: welcome email to %s: %v", user.Email, err)
			}
		}()
	}
	return s.establishSession(ctx, user)
}

// SignIn authenticates an email/password account and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Password authentication not configured", nil)
	}
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.establishSession(ctx, user)
}

// ChangePassword rotates the session user's password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if s.passwords == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Password authentication not configured", nil)
	}
	return s.passwords.ChangePassword(ctx, userID, current, next)
}

func (s *Service) establishSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:       user.ID,
		Name:      user.Name,
		Moderator: user.Moderator,
		JTI:       jti,
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := util.NewID("rt")
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.Name,
		Moderator:    user.Moderator,
		Locked:       user.Locked,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and refreshes the caller's
// flags from the user row, so a lock or a moderator grant takes effect
// before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Moderator: claims.Moderator,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}
	user, found, err := s.users.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, fmt.Errorf("look up session user: %w", err)
	}
	if !found {
		return Session{}, auth.ErrInvalidToken
	}
	session.UserName = user.Name
	session.Moderator = user.Moderator
	session.Locked = user.Locked
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.users.TouchLastSeen(ctx, user.ID); err != nil {
			log.Printf("app: touch last seen %d: %v", user.ID, err)
		}
	}()
	return session, nil
}

// Refresh rotates a refresh token: the old one is revoked and a fresh
// session is issued for the same user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	fresh, found, err := s.users.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("look up refresh user: %w", err)
	}
	if !found {
		return Session{}, auth.ErrInvalidToken
	}
	return s.establishSession(ctx, fresh)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// --- entities ---

// PutEntity submits content for one kind. A pending outcome notifies the
// moderators by email when mail is configured.
func (s *Service) PutEntity(ctx context.Context, caller moderation.Caller, kind string, id int64, body []byte) (PutOutcome, error) {
	api, ok := s.entity(kind)
	if !ok {
		return PutOutcome{}, moderation.ErrNotFound
	}
	outcome, err := api.Put(ctx, caller, id, body)
	if err != nil {
		return PutOutcome{}, err
	}
	if outcome.Pending && !outcome.NoOp {
		s.notifySubmission(caller, kind)
	}
	return outcome, nil
}

func (s *Service) notifySubmission(caller moderation.Caller, kind string) {
	if s.mail == nil || !s.mail.IsConfigured() || s.cfg.ModerationEmail == "" {
		return
	}
	author := caller.Name
	queueURL := s.cfg.SiteURL + "/moderation/queue"
	go func() {
		if err := s.mail.SendSubmissionNotice([]string{s.cfg.ModerationEmail}, author, kind, queueURL); err != nil {
			log.Printf("app: submission notice: %v", err)
		}
	}()
}

func (s *Service) TouchEntity(ctx context.Context, caller moderation.Caller, kind string, id int64) error {
	api, ok := s.entity(kind)
	if !ok {
		return moderation.ErrNotFound
	}
	return api.Touch(ctx, caller, id)
}

func (s *Service) DeleteEntity(ctx context.Context, caller moderation.Caller, kind string, id int64) error {
	api, ok := s.entity(kind)
	if !ok {
		return moderation.ErrNotFound
	}
	return api.Delete(ctx, caller, id)
}

// GetEntity reads one live entity as the caller may see it. Public rows
// are served through the Redis read-through cache; private rows and
// moderator reads always hit Postgres.
func (s *Service) GetEntity(ctx context.Context, caller moderation.Caller, kind string, id int64) (json.RawMessage, error) {
	api, ok := s.entity(kind)
	if !ok {
		return nil, moderation.ErrNotFound
	}

	if s.cache != nil && !caller.Moderator {
		payload, hit, err := s.cache.GetEntity(ctx, kind, id)
		if err != nil {
			log.Printf("app: cache get %s %d: %v", kind, id, err)
		} else if hit {
			return payload, nil
		}
	}

	rendered, public, err := api.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("marshal %s %d: %w", kind, id, err)
	}
	if s.cache != nil && public {
		if err := s.cache.SetEntity(ctx, kind, id, payload); err != nil {
			log.Printf("app: cache set %s %d: %v", kind, id, err)
		}
	}
	return payload, nil
}

func (s *Service) ListEntities(ctx context.Context, caller moderation.Caller, kind string) (any, error) {
	api, ok := s.entity(kind)
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return api.List(ctx, caller)
}

func (s *Service) LatestSubmission(ctx context.Context, caller moderation.Caller, kind string, id int64) (any, error) {
	api, ok := s.entity(kind)
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return api.Submission(ctx, caller, id)
}

func (s *Service) GetRevision(ctx context.Context, caller moderation.Caller, kind string, versionID int64) (any, error) {
	api, ok := s.entity(kind)
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return api.Revision(ctx, caller, versionID)
}

// --- links ---

func (s *Service) PutLink(ctx context.Context, caller moderation.Caller, aKind, bKind string, aID, bID int64) (moderation.LinkResult, error) {
	if _, ok := s.entity(aKind); !ok {
		return moderation.LinkResult{}, moderation.ErrNotFound
	}
	if _, ok := s.entity(bKind); !ok {
		return moderation.LinkResult{}, moderation.ErrNotFound
	}
	result, err := s.core.PutLink(ctx, caller, aKind, bKind, aID, bID)
	if err != nil {
		return moderation.LinkResult{}, err
	}
	if !result.Live && !result.NoOp {
		s.notifySubmission(caller, aKind+"/"+bKind)
	}
	return result, nil
}

func (s *Service) DeleteLink(ctx context.Context, caller moderation.Caller, aKind, bKind string, aID, bID int64) error {
	return s.core.DeleteLink(ctx, caller, aKind, bKind, aID, bID)
}

func (s *Service) EntityLinks(ctx context.Context, caller moderation.Caller, kind string, id int64) (map[string][]store.LinkPair, error) {
	if _, ok := s.entity(kind); !ok {
		return nil, moderation.ErrNotFound
	}
	// Links are only reported for entities the caller can see.
	if _, _, err := s.mustSee(ctx, caller, kind, id); err != nil {
		return nil, err
	}
	return s.core.LiveLinks(ctx, kind, id)
}

func (s *Service) mustSee(ctx context.Context, caller moderation.Caller, kind string, id int64) (any, bool, error) {
	api, _ := s.entity(kind)
	return api.Get(ctx, caller, id)
}

// --- moderation surfaces ---

func (s *Service) ModerationQueue(ctx context.Context, caller moderation.Caller) (moderation.Queue, error) {
	return s.core.ModerationQueue(ctx, caller)
}

func (s *Service) History(ctx context.Context, caller moderation.Caller, limit, offset int) ([]store.HistoryItem, error) {
	return s.core.History(ctx, caller, limit, offset)
}

// --- search ---

func (s *Service) Search(caller moderation.Caller, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured", nil)
	}
	q.PublicOnly = !caller.Moderator
	return s.search.Search(q), nil
}

// --- export ---

// RunExport produces a public data dump. Moderator only; dumps carry
// public rows but triggering one is an operational action.
func (s *Service) RunExport(ctx context.Context, caller moderation.Caller) ([]export.Result, error) {
	if !caller.Moderator {
		return nil, moderation.ErrForbidden
	}
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	return s.export.Run(ctx)
}

// PGSessionStore adapts the Postgres refresh-session fallback to the
// session store interface the service uses.
type PGSessionStore struct {
	Users *store.UserStore
}

func (p PGSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.Users.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p PGSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.Users.LookupRefreshSession(ctx, tokenHash)
}

func (p PGSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.Users.RevokeRefreshSession(ctx, tokenHash)
}
