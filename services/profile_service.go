package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventure/database"
	"eventure/models"
	"eventure/storage"
)

const eventColumns = `id, name, event_date, description, budget_range, audience_type, sponsorship_requirements`

// ProfileService reads and edits user profiles.
type ProfileService struct {
	db     *sqlx.DB
	blobs  storage.Blob
	logger *zap.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(db *sqlx.DB, blobs storage.Blob, logger *zap.Logger) *ProfileService {
	return &ProfileService{db: db, blobs: blobs, logger: logger}
}

// GetUserProfile returns the user with their role details.
func (s *ProfileService) GetUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	u, err := getUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.withDetails(ctx, s.db, u)
}

func (s *ProfileService) withDetails(ctx context.Context, q sqlx.QueryerContext, u *models.User) (*models.Profile, error) {
	p := &models.Profile{User: *u}

	switch u.Role {
	case models.RoleOrganizer:
		details := &models.OrganizerDetails{UpcomingEvents: []models.UpcomingEvent{}}
		err := sqlx.GetContext(ctx, q, &details.PastEvents, `SELECT past_events FROM organizers WHERE user_id = ?`, u.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error getting organizer details: %w", err)
		}
		err = sqlx.SelectContext(ctx, q, &details.UpcomingEvents,
			`SELECT `+eventColumns+` FROM organizer_events WHERE organizer_id = ? ORDER BY seq`, u.ID)
		if err != nil {
			return nil, fmt.Errorf("error getting upcoming events: %w", err)
		}
		p.OrganizerDetails = details

	case models.RoleSponsor:
		details := &models.SponsorDetails{
			EventTypesSponsored:      models.StringList{},
			PreferredPromotionFormat: models.StringList{},
		}
		err := sqlx.GetContext(ctx, q, details,
			`SELECT company_name, event_types_sponsored, preferred_promotion_format FROM sponsors WHERE user_id = ?`, u.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error getting sponsor details: %w", err)
		}
		p.SponsorDetails = details
	}

	return p, nil
}

// UpdateUserProfile changes the fields shared by both roles.
func (s *ProfileService) UpdateUserProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("display name cannot be empty: %w", ErrInvalidInput)
		}
		req.DisplayName = &name
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			display_name = COALESCE(?, display_name),
			about = COALESCE(?, about),
			updated_at = ?
		WHERE id = ?`, req.DisplayName, req.About, now(), userID)
	if err != nil {
		return nil, fmt.Errorf("error updating profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return s.GetUserProfile(ctx, userID)
}

func (s *ProfileService) requireRole(ctx context.Context, q sqlx.QueryerContext, userID string, role models.Role) error {
	u, err := getUser(ctx, q, userID)
	if err != nil {
		return err
	}
	if u.Role != role {
		return fmt.Errorf("user %s is not a %s: %w", userID, role, ErrForbidden)
	}
	return nil
}

// UpdateOrganizerProfile changes organizer-only fields. A non-nil
// UpcomingEvents replaces the existing list; events without an ID get one.
func (s *ProfileService) UpdateOrganizerProfile(ctx context.Context, userID string, req models.UpdateOrganizerRequest) (*models.Profile, error) {
	if req.UpcomingEvents != nil {
		for _, ev := range *req.UpcomingEvents {
			if strings.TrimSpace(ev.Name) == "" {
				return nil, fmt.Errorf("upcoming event name is required: %w", ErrInvalidInput)
			}
		}
	}

	err := database.WithTx(ctx, s.db, s.logger, "update organizer profile", func(tx *sqlx.Tx) error {
		if err := s.requireRole(ctx, tx, userID, models.RoleOrganizer); err != nil {
			return err
		}

		ts := now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organizers (user_id, past_events, updated_at) VALUES (?, COALESCE(?, ''), ?)
			ON CONFLICT(user_id) DO UPDATE SET
				past_events = COALESCE(?, past_events),
				updated_at = excluded.updated_at`,
			userID, req.PastEvents, ts, req.PastEvents)
		if err != nil {
			return fmt.Errorf("error updating organizer: %w", err)
		}

		if req.UpcomingEvents != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM organizer_events WHERE organizer_id = ?`, userID); err != nil {
				return fmt.Errorf("error clearing upcoming events: %w", err)
			}
			for _, ev := range *req.UpcomingEvents {
				if ev.ID == "" {
					ev.ID = newID()
				}
				if err := insertEvent(ctx, tx, userID, &ev); err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE users SET updated_at = ? WHERE id = ?`, ts, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserProfile(ctx, userID)
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, organizerID string, ev *models.UpcomingEvent) error {
	ev.Name = strings.TrimSpace(ev.Name)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO organizer_events (id, organizer_id, name, event_date, description, budget_range, audience_type, sponsorship_requirements)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, organizerID, ev.Name, ev.Date, ev.Description, ev.BudgetRange, ev.AudienceType, ev.SponsorshipRequirements)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("upcoming event %s already exists: %w", ev.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("error saving upcoming event: %w", err)
	}
	return nil
}

// UpdateSponsorProfile changes sponsor-only fields.
func (s *ProfileService) UpdateSponsorProfile(ctx context.Context, userID string, req models.UpdateSponsorRequest) (*models.Profile, error) {
	var eventTypes, formats interface{}
	if req.EventTypesSponsored != nil {
		eventTypes = models.StringList(*req.EventTypesSponsored)
	}
	if req.PreferredPromotionFormat != nil {
		formats = models.StringList(*req.PreferredPromotionFormat)
	}

	err := database.WithTx(ctx, s.db, s.logger, "update sponsor profile", func(tx *sqlx.Tx) error {
		if err := s.requireRole(ctx, tx, userID, models.RoleSponsor); err != nil {
			return err
		}

		ts := now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sponsors (user_id, company_name, event_types_sponsored, preferred_promotion_format, updated_at)
			VALUES (?, COALESCE(?, ''), COALESCE(?, '[]'), COALESCE(?, '[]'), ?)
			ON CONFLICT(user_id) DO UPDATE SET
				company_name = COALESCE(?, company_name),
				event_types_sponsored = COALESCE(?, event_types_sponsored),
				preferred_promotion_format = COALESCE(?, preferred_promotion_format),
				updated_at = excluded.updated_at`,
			userID, req.CompanyName, eventTypes, formats, ts,
			req.CompanyName, eventTypes, formats)
		if err != nil {
			return fmt.Errorf("error updating sponsor: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE users SET updated_at = ? WHERE id = ?`, ts, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserProfile(ctx, userID)
}

// AddUpcomingEvent appends an event to an organizer's list.
func (s *ProfileService) AddUpcomingEvent(ctx context.Context, userID string, ev models.UpcomingEvent) (*models.UpcomingEvent, error) {
	if strings.TrimSpace(ev.Name) == "" {
		return nil, fmt.Errorf("event name is required: %w", ErrInvalidInput)
	}
	ev.ID = newID()

	err := database.WithTx(ctx, s.db, s.logger, "add upcoming event", func(tx *sqlx.Tx) error {
		if err := s.requireRole(ctx, tx, userID, models.RoleOrganizer); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO organizers (user_id, past_events, updated_at) VALUES (?, '', ?)
			ON CONFLICT(user_id) DO NOTHING`, userID, now())
		if err != nil {
			return fmt.Errorf("error ensuring organizer row: %w", err)
		}
		return insertEvent(ctx, tx, userID, &ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// RemoveUpcomingEvent deletes one of the organizer's events.
func (s *ProfileService) RemoveUpcomingEvent(ctx context.Context, userID, eventID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM organizer_events WHERE id = ? AND organizer_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("error removing upcoming event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upcoming event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// UploadProfileImage stores a new profile photo and returns its URL.
func (s *ProfileService) UploadProfileImage(ctx context.Context, userID string, up models.Upload) (string, error) {
	key := fmt.Sprintf("profileImages/%s/profile-%d", userID, now().UnixMilli())
	return s.uploadImage(ctx, userID, key, "photo_url", up)
}

// UploadCoverImage stores a new cover image and returns its URL.
func (s *ProfileService) UploadCoverImage(ctx context.Context, userID string, up models.Upload) (string, error) {
	key := fmt.Sprintf("profileImages/%s/cover-%d", userID, now().UnixMilli())
	return s.uploadImage(ctx, userID, key, "cover_image_url", up)
}

// column is one of two fixed identifiers, never user input.
func (s *ProfileService) uploadImage(ctx context.Context, userID, key, column string, up models.Upload) (string, error) {
	if !strings.HasPrefix(up.ContentType, "image/") {
		return "", fmt.Errorf("content type %q is not an image: %w", up.ContentType, ErrInvalidInput)
	}
	if _, err := getUser(ctx, s.db, userID); err != nil {
		return "", err
	}

	url, err := s.blobs.Put(ctx, key, up.Body, up.Size, up.ContentType)
	if err != nil {
		return "", fmt.Errorf("error storing image: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`, url, now(), userID)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("key", key), zap.Error(delErr))
		}
		return "", fmt.Errorf("error saving image url: %w", err)
	}
	return url, nil
}

type searchRow struct {
	models.User
	CompanyName sql.NullString `db:"company_name"`
}

// SearchUsers returns users whose display name, about text or company name
// contains query, case-insensitively. An empty query matches everyone.
func (s *ProfileService) SearchUsers(ctx context.Context, query string, filters models.SearchFilters) ([]models.Profile, error) {
	if filters.Role != "" && !filters.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", filters.Role, ErrInvalidInput)
	}

	q := `SELECT u.id, u.email, u.password_hash, u.role, u.display_name, u.photo_url, u.cover_image_url, u.about,
			u.created_at, u.updated_at, s.company_name
		FROM users u LEFT JOIN sponsors s ON s.user_id = u.id`
	var args []interface{}
	if filters.Role != "" {
		q += ` WHERE u.role = ?`
		args = append(args, filters.Role)
	}
	q += ` ORDER BY u.seq`

	var rows []searchRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("error searching users: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	results := []models.Profile{}
	for i := range rows {
		haystack := strings.ToLower(rows[i].DisplayName + " " + rows[i].About + " " + rows[i].CompanyName.String)
		if needle != "" && !strings.Contains(haystack, needle) {
			continue
		}
		p, err := s.withDetails(ctx, s.db, &rows[i].User)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	return results, nil
}
