package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ispfinder/ispfinder/internal/catalog"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/lib/pq"
)

// CatalogRepository reads and replaces the catalog held in PostgreSQL.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a catalog repository.
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Load reads the whole catalog in catalog order.
func (r *CatalogRepository) Load(ctx context.Context) (catalog.Data, error) {
	cities, err := r.loadCities(ctx)
	if err != nil {
		return catalog.Data{}, err
	}

	isps, err := r.loadISPs(ctx)
	if err != nil {
		return catalog.Data{}, err
	}

	index := make(map[string]int, len(isps))
	for i := range isps {
		index[isps[i].ID] = i
	}

	if err := r.loadPlans(ctx, isps, index); err != nil {
		return catalog.Data{}, err
	}
	if err := r.loadCoverage(ctx, isps, index); err != nil {
		return catalog.Data{}, err
	}
	if err := r.loadOffers(ctx, isps, index); err != nil {
		return catalog.Data{}, err
	}

	return catalog.Data{Cities: cities, ISPs: isps}, nil
}

func (r *CatalogRepository) loadCities(ctx context.Context) ([]models.City, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, state, lat, lng, population, area_coverage
		FROM cities
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cities: %w", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		var city models.City
		var area []byte
		if err := rows.Scan(
			&city.ID, &city.Name, &city.State,
			&city.Coordinates.Lat, &city.Coordinates.Lng,
			&city.Population, &area,
		); err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		if len(area) > 0 {
			if err := json.Unmarshal(area, &city.AreaCoverage); err != nil {
				return nil, fmt.Errorf("failed to unmarshal area coverage for city %s: %w", city.ID, err)
			}
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cities: %w", err)
	}
	return cities, nil
}

func (r *CatalogRepository) loadISPs(ctx context.Context) ([]models.ISP, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, logo, tagline, rating, total_reviews, features, business_plans, website
		FROM isps
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query isps: %w", err)
	}
	defer rows.Close()

	var isps []models.ISP
	for rows.Next() {
		var isp models.ISP
		if err := rows.Scan(
			&isp.ID, &isp.Name, &isp.Logo, &isp.Tagline, &isp.Rating,
			&isp.TotalReviews, pq.Array(&isp.Features), &isp.BusinessPlans, &isp.Website,
		); err != nil {
			return nil, fmt.Errorf("failed to scan isp: %w", err)
		}
		isps = append(isps, isp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating isps: %w", err)
	}
	return isps, nil
}

func (r *CatalogRepository) loadPlans(ctx context.Context, isps []models.ISP, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, isp_id, name, type, connection_type, speed, upload_speed, price,
		       data_cap, contract_length, installation_fee, equipment_fee, features
		FROM plans
		ORDER BY isp_id, position
	`)
	if err != nil {
		return fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var plan models.Plan
		var dataCap sql.NullFloat64
		if err := rows.Scan(
			&plan.ID, &plan.ISPID, &plan.Name, &plan.Type, &plan.ConnectionType,
			&plan.Speed, &plan.UploadSpeed, &plan.Price, &dataCap,
			&plan.ContractLength, &plan.InstallationFee, &plan.EquipmentFee,
			pq.Array(&plan.Features),
		); err != nil {
			return fmt.Errorf("failed to scan plan: %w", err)
		}
		if dataCap.Valid {
			v := dataCap.Float64
			plan.DataCap = &v
		}
		i, ok := index[plan.ISPID]
		if !ok {
			return fmt.Errorf("plan %s references unknown isp %s", plan.ID, plan.ISPID)
		}
		isps[i].Plans = append(isps[i].Plans, plan)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating plans: %w", err)
	}
	return nil
}

func (r *CatalogRepository) loadCoverage(ctx context.Context, isps []models.ISP, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT isp_id, city_id, city_name, coverage_percentage, signal_strength, available_at
		FROM coverage
		ORDER BY isp_id, position
	`)
	if err != nil {
		return fmt.Errorf("failed to query coverage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ispID string
		var c models.Coverage
		if err := rows.Scan(&ispID, &c.CityID, &c.CityName, &c.Percentage, &c.SignalStrength, &c.AvailableAt); err != nil {
			return fmt.Errorf("failed to scan coverage: %w", err)
		}
		i, ok := index[ispID]
		if !ok {
			return fmt.Errorf("coverage for %s references unknown isp %s", c.CityID, ispID)
		}
		isps[i].Coverage = append(isps[i].Coverage, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating coverage: %w", err)
	}
	return nil
}

func (r *CatalogRepository) loadOffers(ctx context.Context, isps []models.ISP, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT isp_id, id, title, description, discount, valid_until, terms
		FROM special_offers
		ORDER BY isp_id, position
	`)
	if err != nil {
		return fmt.Errorf("failed to query special offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ispID string
		var o models.SpecialOffer
		if err := rows.Scan(&ispID, &o.ID, &o.Title, &o.Description, &o.Discount, &o.ValidUntil, &o.Terms); err != nil {
			return fmt.Errorf("failed to scan special offer: %w", err)
		}
		i, ok := index[ispID]
		if !ok {
			return fmt.Errorf("offer %s references unknown isp %s", o.ID, ispID)
		}
		isps[i].SpecialOffers = append(isps[i].SpecialOffers, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating special offers: %w", err)
	}
	return nil
}

// Save replaces the stored catalog with data in a single transaction.
func (r *CatalogRepository) Save(ctx context.Context, data catalog.Data) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Child tables cascade from isps and cities.
	if _, err := tx.ExecContext(ctx, "DELETE FROM isps"); err != nil {
		return fmt.Errorf("failed to clear isps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cities"); err != nil {
		return fmt.Errorf("failed to clear cities: %w", err)
	}

	for pos, city := range data.Cities {
		area, err := json.Marshal(city.AreaCoverage)
		if err != nil {
			return fmt.Errorf("failed to marshal area coverage for city %s: %w", city.ID, err)
		}
		if city.AreaCoverage == nil {
			area = []byte("[]")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cities (id, position, name, state, lat, lng, population, area_coverage)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, city.ID, pos, city.Name, city.State, city.Coordinates.Lat, city.Coordinates.Lng, city.Population, area)
		if err != nil {
			return fmt.Errorf("failed to insert city %s: %w", city.ID, err)
		}
	}

	for pos, isp := range data.ISPs {
		if err := saveISP(ctx, tx, pos, &isp); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

func saveISP(ctx context.Context, tx *sql.Tx, pos int, isp *models.ISP) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO isps (id, position, name, logo, tagline, rating, total_reviews, features, business_plans, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, isp.ID, pos, isp.Name, isp.Logo, isp.Tagline, isp.Rating, isp.TotalReviews,
		pq.Array(nonNil(isp.Features)), isp.BusinessPlans, isp.Website)
	if err != nil {
		return fmt.Errorf("failed to insert isp %s: %w", isp.ID, err)
	}

	for i, plan := range isp.Plans {
		var dataCap sql.NullFloat64
		if plan.DataCap != nil {
			dataCap = sql.NullFloat64{Float64: *plan.DataCap, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plans (id, isp_id, position, name, type, connection_type, speed, upload_speed,
			                   price, data_cap, contract_length, installation_fee, equipment_fee, features)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, plan.ID, isp.ID, i, plan.Name, string(plan.Type), string(plan.ConnectionType), plan.Speed,
			plan.UploadSpeed, plan.Price, dataCap, plan.ContractLength, plan.InstallationFee,
			plan.EquipmentFee, pq.Array(nonNil(plan.Features)))
		if err != nil {
			return fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
		}
	}

	for i, c := range isp.Coverage {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO coverage (isp_id, city_id, position, city_name, coverage_percentage, signal_strength, available_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, isp.ID, c.CityID, i, c.CityName, c.Percentage, string(c.SignalStrength), c.AvailableAt)
		if err != nil {
			return fmt.Errorf("failed to insert coverage %s/%s: %w", isp.ID, c.CityID, err)
		}
	}

	for i, o := range isp.SpecialOffers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO special_offers (isp_id, id, position, title, description, discount, valid_until, terms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, isp.ID, o.ID, i, o.Title, o.Description, o.Discount, o.ValidUntil, o.Terms)
		if err != nil {
			return fmt.Errorf("failed to insert offer %s/%s: %w", isp.ID, o.ID, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
