package whatsapp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantDevice struct {
	TenantID string
	JID      string
}

// Directory lists the tenants that have a paired WhatsApp device.
type Directory interface {
	ListDevices(ctx context.Context) ([]TenantDevice, error)
}

type DeviceRepo struct{ DB *pgxpool.Pool }

func (r *DeviceRepo) ListDevices(ctx context.Context) ([]TenantDevice, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, whatsapp_jid FROM tenants WHERE whatsapp_jid IS NOT NULL AND whatsapp_jid <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: list devices: %w", err)
	}
	defer rows.Close()

	var out []TenantDevice
	for rows.Next() {
		var d TenantDevice
		if err := rows.Scan(&d.TenantID, &d.JID); err != nil {
			return nil, fmt.Errorf("whatsapp: scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
