package repository

import (
	"context"

	"github.com/ygdillon/fitlink/internal/models"
)

type ClientRepository struct {
	db DBTX
}

func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Link(ctx context.Context, trainerID, clientID int64) (*models.TrainerClient, error) {
	query := `
		INSERT INTO trainer_clients (trainer_id, client_id, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (trainer_id, client_id) DO UPDATE SET status = 'active'
		RETURNING id, trainer_id, client_id, status, created_at
	`
	var link models.TrainerClient
	err := r.db.QueryRow(ctx, query, trainerID, clientID).
		Scan(&link.ID, &link.TrainerID, &link.ClientID, &link.Status, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// GetActiveLink returns the active association between a trainer and a
// client, or pgx.ErrNoRows when the client is not linked to the trainer.
func (r *ClientRepository) GetActiveLink(ctx context.Context, trainerID, clientID int64) (*models.TrainerClient, error) {
	query := `
		SELECT id, trainer_id, client_id, status, created_at
		FROM trainer_clients
		WHERE trainer_id = $1 AND client_id = $2 AND status = 'active'
	`
	var link models.TrainerClient
	err := r.db.QueryRow(ctx, query, trainerID, clientID).
		Scan(&link.ID, &link.TrainerID, &link.ClientID, &link.Status, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *ClientRepository) ListClients(ctx context.Context, trainerID int64) ([]models.ClientSummary, error) {
	query := `
		SELECT u.id, u.email, u.full_name, tc.status
		FROM trainer_clients tc
		JOIN users u ON u.id = tc.client_id
		WHERE tc.trainer_id = $1 AND tc.status = 'active'
		ORDER BY u.id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]models.ClientSummary, 0)
	for rows.Next() {
		var client models.ClientSummary
		if err := rows.Scan(&client.ID, &client.Email, &client.FullName, &client.Status); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return clients, nil
}
