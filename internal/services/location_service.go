package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemachnet/backend/internal/models"
)

// LocationService serves the directory of lending sites. The engine never
// mutates locations; they are provisioned out of band and read here for
// deposit defaults and the public directory.
type LocationService struct {
	db *sql.DB
}

func NewLocationService(db *sql.DB) *LocationService {
	return &LocationService{db: db}
}

// ListLocations lists active lending sites
// @Summary List locations
// @Description List all active locations with their deposit configuration
// @Tags locations
// @Produce json
// @Success 200 {array} models.Location
// @Failure 500 {object} services.ErrorResponse
// @Router /locations [get]
func (s *LocationService) ListLocations(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
        SELECT id, name, COALESCE(address, ''), COALESCE(city, ''),
               COALESCE(contact_email, ''), COALESCE(contact_phone, ''),
               deposit_amount, currency, is_active, created_at
        FROM locations WHERE is_active = true ORDER BY name
    `)
	if err != nil {
		log.Printf("[LOCATION] Listing failed: %v", err)
		SendErrorResponse(w, "Failed to list locations", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	locations := []models.Location{}
	for rows.Next() {
		var loc models.Location
		err := rows.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.City, &loc.ContactEmail,
			&loc.ContactPhone, &loc.DepositAmount, &loc.Currency, &loc.IsActive, &loc.CreatedAt)
		if err != nil {
			log.Printf("[LOCATION] Row scan failed: %v", err)
			SendErrorResponse(w, "Failed to list locations", http.StatusInternalServerError, nil)
			return
		}
		locations = append(locations, loc)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(locations)
}

// GetLocation fetches one lending site
// @Summary Get location
// @Tags locations
// @Produce json
// @Param locationId path string true "Location ID"
// @Success 200 {object} models.Location
// @Failure 404 {object} services.ErrorResponse
// @Router /locations/{locationId} [get]
func (s *LocationService) GetLocation(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationId")

	var loc models.Location
	err := s.db.QueryRowContext(r.Context(), `
        SELECT id, name, COALESCE(address, ''), COALESCE(city, ''),
               COALESCE(contact_email, ''), COALESCE(contact_phone, ''),
               deposit_amount, currency, is_active, created_at
        FROM locations WHERE id = $1
    `, locationID).Scan(&loc.ID, &loc.Name, &loc.Address, &loc.City, &loc.ContactEmail,
		&loc.ContactPhone, &loc.DepositAmount, &loc.Currency, &loc.IsActive, &loc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Location not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[LOCATION] Lookup failed for %s: %v", locationID, err)
		SendErrorResponse(w, "Failed to fetch location", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loc)
}
