package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/inkform/inkform/libs/db"
	"github.com/inkform/inkform/libs/secrets"
	"github.com/inkform/inkform/services/studio-service/internal/model"
)

// StudioRepository reads studio settings. Credentials are stored sealed and
// opened here, so callers only ever see plaintext.
type StudioRepository struct {
	pool *db.Pool
	box  *secrets.Box
}

func NewStudioRepository(pool *db.Pool, box *secrets.Box) *StudioRepository {
	return &StudioRepository{pool: pool, box: box}
}

func (r *StudioRepository) Studio(ctx context.Context, studioID string) (model.Studio, error) {
	if _, err := uuid.Parse(studioID); err != nil {
		return model.Studio{}, ErrStudioNotFound
	}
	var st model.Studio
	var sealedCreds, sealedPass string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(address, ''), COALESCE(phone, ''), timezone,
			email_notifications_enabled, calendar_integration_enabled,
			COALESCE(google_calendar_credentials, ''),
			COALESCE(email_smtp_host, ''), COALESCE(email_smtp_port, 0), COALESCE(email_smtp_user, ''),
			COALESCE(email_smtp_pass, ''), COALESCE(email_from, '')
		FROM studios
		WHERE id = $1
	`, studioID).Scan(
		&st.ID,
		&st.Name,
		&st.Address,
		&st.Phone,
		&st.Timezone,
		&st.EmailNotificationsEnabled,
		&st.CalendarIntegrationEnabled,
		&sealedCreds,
		&st.SMTP.Host,
		&st.SMTP.Port,
		&st.SMTP.User,
		&sealedPass,
		&st.SMTP.From,
	)
	if db.IsNoRows(err) {
		return model.Studio{}, ErrStudioNotFound
	}
	if err != nil {
		return model.Studio{}, persistence("get studio", err)
	}

	if st.CalendarCredentials, err = r.box.Open(sealedCreds); err != nil {
		return model.Studio{}, fmt.Errorf("open calendar credentials for studio %s: %w", studioID, err)
	}
	if st.SMTP.Password, err = r.box.Open(sealedPass); err != nil {
		return model.Studio{}, fmt.Errorf("open smtp password for studio %s: %w", studioID, err)
	}
	return st, nil
}
