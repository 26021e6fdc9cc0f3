package staff

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
)

const inviteTTL = 7 * 24 * time.Hour

var (
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrInviteNotFound       = errors.New("invite not found")
	ErrInviteUsed           = errors.New("invite already used")
	ErrInviteExpired        = errors.New("invite expired")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	fieldUID           = "uid"
	fieldCenterID      = "centerId"
	fieldName          = "name"
	fieldRole          = "role"
	fieldEmail         = "email"
	fieldActive        = "active"
	fieldStatus        = "status"
	fieldCreatedBy     = "createdBy"
	fieldExpiresAt     = "expiresAt"
	fieldAcceptedBy    = "acceptedBy"
	fieldAcceptedAt    = "acceptedAt"
	fieldDeactivatedAt = "deactivatedAt"
	fieldDeactivatedBy = "deactivatedBy"
	fieldCreatedAt     = "createdAt"
	fieldUpdatedAt     = "updatedAt"
)

// Service manages the professionals catalog of each center.
type Service struct {
	store  docstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store docstore.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Roles lists the distinct roles of active professionals.
func (s *Service) Roles(ctx context.Context, centerID string) ([]string, error) {
	pros, err := s.Professionals(ctx, centerID, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	roles := []string{}
	for _, p := range pros {
		if p.Role != "" && !seen[p.Role] {
			seen[p.Role] = true
			roles = append(roles, p.Role)
		}
	}
	sort.Strings(roles)
	return roles, nil
}

// Professionals lists active professionals, optionally for one role.
func (s *Service) Professionals(ctx context.Context, centerID, role string) ([]Professional, error) {
	if !docstore.ValidID(centerID) {
		return nil, docstore.ErrInvalidPath
	}
	docs, err := s.store.List(ctx, docstore.ProfessionalsCollection(centerID), docstore.Where(fieldActive, true))
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	out := make([]Professional, 0, len(docs))
	for i := range docs {
		p := decodeProfessional(centerID, &docs[i])
		if role != "" && p.Role != role {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) Get(ctx context.Context, centerID, uid string) (*Professional, error) {
	if !docstore.ValidID(centerID) || !docstore.ValidID(uid) {
		return nil, ErrProfessionalNotFound
	}
	doc, err := s.store.Get(ctx, docstore.ProfessionalPath(centerID, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrProfessionalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get professional: %w", err)
	}
	p := decodeProfessional(centerID, doc)
	return &p, nil
}

// CreateInvite issues a single-use onboarding token.
func (s *Service) CreateInvite(ctx context.Context, centerID string, req InviteRequest) (*Invite, error) {
	verr := &appointment.ValidationError{Fields: map[string]string{}}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if !emailPattern.MatchString(email) {
		verr.Fields["email"] = "invalid address"
	}
	if role == "" {
		verr.Fields["role"] = "required"
	}
	if !docstore.ValidID(centerID) {
		verr.Fields["centerId"] = "invalid"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	inv := &Invite{
		Token:     uuid.NewString(),
		CenterID:  centerID,
		Email:     email,
		Role:      role,
		Status:    InvitePending,
		CreatedBy: req.CreatedBy,
		ExpiresAt: s.now().Add(inviteTTL).UTC(),
	}

	// the center document lets housekeeping discover tenants
	if err := s.store.Set(ctx, docstore.CenterPath(centerID),
		docstore.Fields{fieldUpdatedAt: docstore.ServerTimestamp},
		docstore.Merge(), docstore.WithDefaults(docstore.Fields{fieldCreatedAt: docstore.ServerTimestamp})); err != nil {
		return nil, fmt.Errorf("register center: %w", err)
	}

	err := s.store.Set(ctx, docstore.InvitePath(centerID, inv.Token), docstore.Fields{
		fieldEmail:     inv.Email,
		fieldRole:      inv.Role,
		fieldStatus:    string(inv.Status),
		fieldCreatedBy: inv.CreatedBy,
		fieldExpiresAt: docstore.FormatTime(inv.ExpiresAt),
		fieldCreatedAt: docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("save invite: %w", err)
	}

	s.logger.Info().
		Str("center_id", centerID).
		Str("role", role).
		Msg("invite created")
	return inv, nil
}

// AcceptInvite consumes the token and creates the professional in the same
// transaction, so a token can onboard at most one account.
func (s *Service) AcceptInvite(ctx context.Context, centerID, token string, acc Acceptance) (*Professional, error) {
	uid := strings.TrimSpace(acc.UID)
	name := strings.TrimSpace(acc.Name)
	verr := &appointment.ValidationError{Fields: map[string]string{}}
	if !docstore.ValidID(uid) {
		verr.Fields["uid"] = "required"
	}
	if name == "" {
		verr.Fields["name"] = "required"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	if !docstore.ValidID(centerID) || !docstore.ValidID(token) {
		return nil, ErrInviteNotFound
	}

	invitePath := docstore.InvitePath(centerID, token)
	proPath := docstore.ProfessionalPath(centerID, uid)
	var pro Professional

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, invitePath)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrInviteNotFound
		}
		if err != nil {
			return err
		}
		if InviteStatus(doc.Str(fieldStatus)) != InvitePending {
			return ErrInviteUsed
		}
		if exp, ok := docstore.ParseTime(doc.Str(fieldExpiresAt)); ok && !s.now().Before(exp) {
			return ErrInviteExpired
		}

		pro = Professional{
			UID:      uid,
			CenterID: centerID,
			Name:     name,
			Role:     doc.Str(fieldRole),
			Email:    doc.Str(fieldEmail),
			Active:   true,
		}
		tx.Set(invitePath, docstore.Fields{
			fieldStatus:     string(InviteAccepted),
			fieldAcceptedBy: uid,
			fieldAcceptedAt: docstore.ServerTimestamp,
		}, docstore.Merge())
		tx.Set(proPath, docstore.Fields{
			fieldUID:           uid,
			fieldCenterID:      centerID,
			fieldName:          name,
			fieldRole:          pro.Role,
			fieldEmail:         pro.Email,
			fieldActive:        true,
			fieldDeactivatedAt: nil,
			fieldDeactivatedBy: nil,
			fieldUpdatedAt:     docstore.ServerTimestamp,
		}, docstore.Merge(), docstore.WithDefaults(docstore.Fields{fieldCreatedAt: docstore.ServerTimestamp}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("center_id", centerID).
		Str("uid", uid).
		Msg("invite accepted")
	return &pro, nil
}

// Deactivate soft-deletes a professional. The record and their slots stay.
func (s *Service) Deactivate(ctx context.Context, centerID, uid, actor string) error {
	if !docstore.ValidID(centerID) || !docstore.ValidID(uid) {
		return ErrProfessionalNotFound
	}
	path := docstore.ProfessionalPath(centerID, uid)
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, path); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrProfessionalNotFound
			}
			return err
		}
		tx.Set(path, docstore.Fields{
			fieldActive:        false,
			fieldDeactivatedAt: docstore.ServerTimestamp,
			fieldDeactivatedBy: actor,
			fieldUpdatedAt:     docstore.ServerTimestamp,
		}, docstore.Merge())
		return nil
	})
}

func decodeProfessional(centerID string, doc *docstore.Document) Professional {
	p := Professional{
		UID:      doc.ID,
		CenterID: centerID,
		Name:     doc.Str(fieldName),
		Role:     doc.Str(fieldRole),
		Email:    doc.Str(fieldEmail),
	}
	if active, ok := doc.Bool(fieldActive); ok {
		p.Active = active
	} else {
		p.Active = true
	}
	if t, ok := docstore.ParseTime(doc.Str(fieldCreatedAt)); ok {
		p.CreatedAt = &t
	}
	return p
}
