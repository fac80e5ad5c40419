/*
Package sqlite provides a SQLite-backed implementation of pricing.Store.

PURPOSE:
  Persists the business-case configuration (index series/points, formulations,
  escalation policies, scenarios with lines and rebates) in a single file and
  serves the read interfaces the pricing engines consume. In production the
  same patterns apply to PostgreSQL - see store/postgres.

KEY TABLES:
  index_series / index_points:  reference series and their monthly values
  formulations (+components):   weighted index baskets pricing a product
  escalation_policies (+components): rate- or index-based multipliers
  scenarios / scenario_lines:   the BOQ and service lines being projected
  rebates (+tiers, +lumps):     contra-revenue rules

UPSERT SEMANTICS:
  Index points upsert on (series_id, year, month): re-importing a month
  overwrites the value, there is no delete path. Formulations, policies and
  scenarios replace wholesale (children are rewritten inside one transaction).

MONTH ENCODING:
  Months are stored as (year INTEGER, month INTEGER) pairs so the
  "latest point at or before" escalation lookup is a single indexed
  ORDER BY year DESC, month DESC query.

DECIMALS:
  All decimal values are stored as TEXT via Decimal.String() and re-parsed on
  scan, preserving exact digits across round-trips.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The engines only read, so concurrent
  scenario computations contend only with configuration imports.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/bizcase.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  agg := pricing.NewAggregator(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - pricing/store.go: the interfaces this implements
  - pricing/store/memory.go: in-memory implementation for testing
  - store/postgres: pgx implementation for the surrounding CRM
*/
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// Store implements pricing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time check that Store implements the full store contract.
var _ pricing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open database")
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reference index series
	CREATE TABLE IF NOT EXISTS index_series (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT,
		currency TEXT
	);

	-- Monthly observed values, unique per (series, year, month), upsert-only
	CREATE TABLE IF NOT EXISTS index_points (
		series_id TEXT NOT NULL REFERENCES index_series(id),
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (series_id, year, month)
	);

	-- CRITICAL: the escalation "latest at or before" lookup walks this index
	-- backwards; keep it aligned with ORDER BY year DESC, month DESC
	CREATE INDEX IF NOT EXISTS idx_index_points_series_month
		ON index_points(series_id, year DESC, month DESC);

	-- Formulations (weighted index baskets)
	CREATE TABLE IF NOT EXISTS formulations (
		id TEXT PRIMARY KEY,
		product_id TEXT,
		name TEXT NOT NULL,
		base_price TEXT NOT NULL,
		currency TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		cloned_from TEXT
	);

	CREATE TABLE IF NOT EXISTS formulation_components (
		formulation_id TEXT NOT NULL REFERENCES formulations(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		series_id TEXT NOT NULL,
		weight_pct TEXT NOT NULL,
		base_value TEXT,
		PRIMARY KEY (formulation_id, position)
	);

	-- Escalation policies; mode is 'rate', 'index' or 'none'
	CREATE TABLE IF NOT EXISTS escalation_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope TEXT NOT NULL,
		start_year INTEGER NOT NULL,
		start_month INTEGER NOT NULL,
		mode TEXT NOT NULL,
		rate TEXT,
		frequency TEXT,
		compounding TEXT,
		cap_pct TEXT,
		floor_pct TEXT
	);

	CREATE TABLE IF NOT EXISTS escalation_components (
		policy_id TEXT NOT NULL REFERENCES escalation_policies(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		series_id TEXT NOT NULL,
		weight_pct TEXT NOT NULL,
		base_value TEXT,
		base_year INTEGER,
		base_month INTEGER,
		PRIMARY KEY (policy_id, position)
	);

	-- Scenarios and their lines
	CREATE TABLE IF NOT EXISTS scenarios (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		name TEXT NOT NULL,
		currency TEXT,
		start_year INTEGER NOT NULL,
		start_month INTEGER NOT NULL,
		duration_months INTEGER NOT NULL,
		default_policy_id TEXT
	);

	CREATE TABLE IF NOT EXISTS scenario_lines (
		id TEXT NOT NULL,
		scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		name TEXT,
		product_id TEXT,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		currency TEXT,
		frequency TEXT NOT NULL,
		start_year INTEGER NOT NULL,
		start_month INTEGER NOT NULL,
		duration_months INTEGER NOT NULL,
		formulation_id TEXT,
		policy_id TEXT,
		PRIMARY KEY (scenario_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_scenario_lines_scenario
		ON scenario_lines(scenario_id);

	-- Rebate rules
	CREATE TABLE IF NOT EXISTS rebates (
		id TEXT NOT NULL,
		scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT,
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		basis TEXT NOT NULL,
		method TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		product_id TEXT,
		valid_from_year INTEGER,
		valid_from_month INTEGER,
		valid_to_year INTEGER,
		valid_to_month INTEGER,
		pay_month_lag INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (scenario_id, position)
	);

	CREATE TABLE IF NOT EXISTS rebate_tiers (
		scenario_id TEXT NOT NULL,
		rebate_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		min_value TEXT NOT NULL,
		max_value TEXT,
		value_pct TEXT,
		amount_flat TEXT,
		PRIMARY KEY (scenario_id, rebate_position, position),
		FOREIGN KEY (scenario_id, rebate_position)
			REFERENCES rebates(scenario_id, position) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS rebate_lumps (
		scenario_id TEXT NOT NULL,
		rebate_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (scenario_id, rebate_position, position),
		FOREIGN KEY (scenario_id, rebate_position)
			REFERENCES rebates(scenario_id, position) ON DELETE CASCADE
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INDEX READS (pricing.IndexReader)
// =============================================================================

// GetSeries returns the series row for id.
func (s *Store) GetSeries(ctx context.Context, id pricing.SeriesID) (*pricing.IndexSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var series pricing.IndexSeries
	var sid string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, unit, currency FROM index_series WHERE id = ?",
		string(id),
	).Scan(&sid, &series.Code, &series.Name, &series.Unit, &series.Currency)

	if err == sql.ErrNoRows {
		return nil, &pricing.NotFoundError{Kind: "index_series", ID: string(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get series %s", id)
	}
	series.ID = pricing.SeriesID(sid)
	return &series, nil
}

// GetPoint returns the value at exactly (id, m).
func (s *Store) GetPoint(ctx context.Context, id pricing.SeriesID, m pricing.Month) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM index_points WHERE series_id = ? AND year = ? AND month = ?",
		string(id), m.Year, int(m.Mon),
	).Scan(&value)

	if err == sql.ErrNoRows {
		return decimal.Zero, &pricing.MissingDataError{SeriesID: id, Month: m, Exact: true}
	}
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "sqlite: get point %s %s", id, m)
	}
	return pricing.MustParseDecimal(value), nil
}

// LatestPoint returns the most recent point with month <= m.
func (s *Store) LatestPoint(ctx context.Context, id pricing.SeriesID, m pricing.Month) (pricing.IndexPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT year, month, value FROM index_points
		WHERE series_id = ? AND (year < ? OR (year = ? AND month <= ?))
		ORDER BY year DESC, month DESC
		LIMIT 1
	`

	var year, month int
	var value string
	err := s.db.QueryRowContext(ctx, query, string(id), m.Year, m.Year, int(m.Mon)).
		Scan(&year, &month, &value)

	if err == sql.ErrNoRows {
		return pricing.IndexPoint{}, &pricing.MissingDataError{SeriesID: id, Month: m, Exact: false}
	}
	if err != nil {
		return pricing.IndexPoint{}, eris.Wrapf(err, "sqlite: latest point %s %s", id, m)
	}
	return pricing.IndexPoint{
		SeriesID: id,
		Month:    pricing.NewMonth(year, time.Month(month)),
		Value:    pricing.MustParseDecimal(value),
	}, nil
}

// =============================================================================
// FORMULATION READS (pricing.FormulationReader)
// =============================================================================

// GetFormulation returns a formulation with its components in order.
func (s *Store) GetFormulation(ctx context.Context, id pricing.FormulationID) (*pricing.Formulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getFormulation(ctx, id)
}

func (s *Store) getFormulation(ctx context.Context, id pricing.FormulationID) (*pricing.Formulation, error) {
	var f pricing.Formulation
	var fid, basePrice string
	var productID, currency, clonedFrom sql.NullString
	var archived int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, name, base_price, currency, archived, version, cloned_from
		 FROM formulations WHERE id = ?`,
		string(id),
	).Scan(&fid, &productID, &f.Name, &basePrice, &currency, &archived, &f.Version, &clonedFrom)

	if err == sql.ErrNoRows {
		return nil, &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get formulation %s", id)
	}

	f.ID = pricing.FormulationID(fid)
	f.ProductID = pricing.ProductID(productID.String)
	f.BasePrice = pricing.MustParseDecimal(basePrice)
	f.Currency = currency.String
	f.Archived = archived != 0
	if clonedFrom.Valid {
		from := pricing.FormulationID(clonedFrom.String)
		f.ClonedFrom = &from
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT series_id, weight_pct, base_value FROM formulation_components
		 WHERE formulation_id = ? ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get formulation components %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var seriesID, weight string
		var baseValue sql.NullString
		if err := rows.Scan(&seriesID, &weight, &baseValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan formulation component")
		}
		f.Components = append(f.Components, pricing.FormulationComponent{
			SeriesID:  pricing.SeriesID(seriesID),
			WeightPct: pricing.MustParseDecimal(weight),
			BaseValue: nullDecimal(baseValue),
		})
	}
	return &f, rows.Err()
}

// =============================================================================
// POLICY READS (pricing.PolicyReader)
// =============================================================================

// GetPolicy returns an escalation policy with its mode reconstructed.
func (s *Store) GetPolicy(ctx context.Context, id pricing.PolicyID) (*pricing.EscalationPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p pricing.EscalationPolicy
	var pid, scope, mode string
	var startYear, startMonth int
	var rate, frequency, compounding, capPct, floorPct sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, scope, start_year, start_month, mode, rate, frequency, compounding, cap_pct, floor_pct
		 FROM escalation_policies WHERE id = ?`,
		string(id),
	).Scan(&pid, &p.Name, &scope, &startYear, &startMonth, &mode,
		&rate, &frequency, &compounding, &capPct, &floorPct)

	if err == sql.ErrNoRows {
		return nil, &pricing.NotFoundError{Kind: "escalation_policy", ID: string(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get policy %s", id)
	}

	p.ID = pricing.PolicyID(pid)
	p.Scope = pricing.EscalationScope(scope)
	p.Start = pricing.NewMonth(startYear, time.Month(startMonth))
	p.CapPct = nullDecimal(capPct)
	p.FloorPct = nullDecimal(floorPct)

	switch mode {
	case "rate":
		p.Mode = pricing.RateMode{
			Rate:        pricing.MustParseDecimal(rate.String),
			Frequency:   pricing.EscalationFrequency(frequency.String),
			Compounding: pricing.Compounding(compounding.String),
		}
	case "index":
		components, err := s.policyComponents(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Mode = pricing.IndexMode{Components: components}
	default:
		// 'none': the explicit neutral policy
		p.Mode = nil
	}
	return &p, nil
}

func (s *Store) policyComponents(ctx context.Context, id pricing.PolicyID) ([]pricing.EscalationComponent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series_id, weight_pct, base_value, base_year, base_month
		 FROM escalation_components WHERE policy_id = ? ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get policy components %s", id)
	}
	defer rows.Close()

	var components []pricing.EscalationComponent
	for rows.Next() {
		var seriesID, weight string
		var baseValue sql.NullString
		var baseYear, baseMonth sql.NullInt64
		if err := rows.Scan(&seriesID, &weight, &baseValue, &baseYear, &baseMonth); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan policy component")
		}

		c := pricing.EscalationComponent{
			SeriesID:  pricing.SeriesID(seriesID),
			WeightPct: pricing.MustParseDecimal(weight),
			BaseValue: nullDecimal(baseValue),
		}
		if baseYear.Valid && baseMonth.Valid {
			m := pricing.NewMonth(int(baseYear.Int64), time.Month(baseMonth.Int64))
			c.BaseMonth = &m
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// =============================================================================
// SCENARIO READS (pricing.ScenarioReader)
// =============================================================================

// GetScenario returns a scenario as a fully loaded aggregate: the scenario
// row plus its lines and rebates with tiers and lumps.
func (s *Store) GetScenario(ctx context.Context, id pricing.ScenarioID) (*pricing.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sc pricing.Scenario
	var sid string
	var tenantID, currency, defaultPolicy sql.NullString
	var startYear, startMonth int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, currency, start_year, start_month, duration_months, default_policy_id
		 FROM scenarios WHERE id = ?`,
		string(id),
	).Scan(&sid, &tenantID, &sc.Name, &currency, &startYear, &startMonth, &sc.DurationMonths, &defaultPolicy)

	if err == sql.ErrNoRows {
		return nil, &pricing.NotFoundError{Kind: "scenario", ID: string(id)}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scenario %s", id)
	}

	sc.ID = pricing.ScenarioID(sid)
	sc.TenantID = tenantID.String
	sc.Currency = currency.String
	sc.Start = pricing.NewMonth(startYear, time.Month(startMonth))
	if defaultPolicy.Valid {
		pid := pricing.PolicyID(defaultPolicy.String)
		sc.DefaultPolicyID = &pid
	}

	if sc.Lines, err = s.scenarioLines(ctx, id); err != nil {
		return nil, err
	}
	if sc.Rebates, err = s.scenarioRebates(ctx, id); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Store) scenarioLines(ctx context.Context, id pricing.ScenarioID) ([]pricing.Line, error) {
	query := `
		SELECT id, kind, name, product_id, quantity, unit_price, unit_cost, currency,
		       frequency, start_year, start_month, duration_months, formulation_id, policy_id
		FROM scenario_lines
		WHERE scenario_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scenario lines %s", id)
	}
	defer rows.Close()

	var lines []pricing.Line
	for rows.Next() {
		var l pricing.Line
		var lid, kind, quantity, unitPrice, unitCost, frequency string
		var name, productID, currency, formulationID, policyID sql.NullString
		var startYear, startMonth int

		if err := rows.Scan(&lid, &kind, &name, &productID, &quantity, &unitPrice, &unitCost,
			&currency, &frequency, &startYear, &startMonth, &l.DurationMonths,
			&formulationID, &policyID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scenario line")
		}

		l.ID = pricing.LineID(lid)
		l.Kind = pricing.LineKind(kind)
		l.Name = name.String
		l.ProductID = pricing.ProductID(productID.String)
		l.Quantity = pricing.MustParseDecimal(quantity)
		l.UnitPrice = pricing.MustParseDecimal(unitPrice)
		l.UnitCost = pricing.MustParseDecimal(unitCost)
		l.Currency = currency.String
		l.Frequency = pricing.LineFrequency(frequency)
		l.Start = pricing.NewMonth(startYear, time.Month(startMonth))
		if formulationID.Valid {
			fid := pricing.FormulationID(formulationID.String)
			l.FormulationID = &fid
		}
		if policyID.Valid {
			pid := pricing.PolicyID(policyID.String)
			l.PolicyID = &pid
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) scenarioRebates(ctx context.Context, id pricing.ScenarioID) ([]pricing.Rebate, error) {
	query := `
		SELECT position, id, name, scope, kind, basis, method, active, product_id,
		       valid_from_year, valid_from_month, valid_to_year, valid_to_month, pay_month_lag
		FROM rebates
		WHERE scenario_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scenario rebates %s", id)
	}
	defer rows.Close()

	var rebates []pricing.Rebate
	var positions []int
	for rows.Next() {
		var r pricing.Rebate
		var position, active int
		var rid, scope, kind, basis, method string
		var name, productID sql.NullString
		var fromYear, fromMonth, toYear, toMonth sql.NullInt64

		if err := rows.Scan(&position, &rid, &name, &scope, &kind, &basis, &method, &active,
			&productID, &fromYear, &fromMonth, &toYear, &toMonth, &r.PayMonthLag); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rebate")
		}

		r.ID = pricing.RebateID(rid)
		r.Name = name.String
		r.Scope = pricing.RebateScope(scope)
		r.Kind = pricing.RebateKind(kind)
		r.Basis = pricing.RebateBasis(basis)
		r.Method = pricing.AccrualMethod(method)
		r.Active = active != 0
		r.ProductID = pricing.ProductID(productID.String)
		r.ValidFrom = nullMonth(fromYear, fromMonth)
		r.ValidTo = nullMonth(toYear, toMonth)

		rebates = append(rebates, r)
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rebates {
		if err := s.loadRebateChildren(ctx, id, positions[i], &rebates[i]); err != nil {
			return nil, err
		}
	}
	return rebates, nil
}

func (s *Store) loadRebateChildren(ctx context.Context, id pricing.ScenarioID, position int, r *pricing.Rebate) error {
	tierRows, err := s.db.QueryContext(ctx,
		`SELECT min_value, max_value, value_pct, amount_flat FROM rebate_tiers
		 WHERE scenario_id = ? AND rebate_position = ? ORDER BY position ASC`,
		string(id), position,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: get rebate tiers %s", r.ID)
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var minValue string
		var maxValue, valuePct, amountFlat sql.NullString
		if err := tierRows.Scan(&minValue, &maxValue, &valuePct, &amountFlat); err != nil {
			return eris.Wrap(err, "sqlite: scan rebate tier")
		}
		r.Tiers = append(r.Tiers, pricing.RebateTier{
			MinValue:   pricing.MustParseDecimal(minValue),
			MaxValue:   nullDecimal(maxValue),
			ValuePct:   nullDecimal(valuePct),
			AmountFlat: nullDecimal(amountFlat),
		})
	}
	if err := tierRows.Err(); err != nil {
		return err
	}

	lumpRows, err := s.db.QueryContext(ctx,
		`SELECT year, month, amount FROM rebate_lumps
		 WHERE scenario_id = ? AND rebate_position = ? ORDER BY position ASC`,
		string(id), position,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: get rebate lumps %s", r.ID)
	}
	defer lumpRows.Close()

	for lumpRows.Next() {
		var year, month int
		var amount string
		if err := lumpRows.Scan(&year, &month, &amount); err != nil {
			return eris.Wrap(err, "sqlite: scan rebate lump")
		}
		r.Lumps = append(r.Lumps, pricing.RebateLump{
			Month:  pricing.NewMonth(year, time.Month(month)),
			Amount: pricing.MustParseDecimal(amount),
		})
	}
	return lumpRows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

// PutSeries inserts or replaces a series row.
func (s *Store) PutSeries(ctx context.Context, series pricing.IndexSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO index_series (id, code, name, unit, currency)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			unit = excluded.unit,
			currency = excluded.currency
	`

	_, err := s.db.ExecContext(ctx, query,
		string(series.ID), series.Code, series.Name, series.Unit, series.Currency)
	return eris.Wrapf(err, "sqlite: put series %s", series.ID)
}

// PutPoints upserts points; existing (series, year, month) keys are
// overwritten.
func (s *Store) PutPoints(ctx context.Context, points []pricing.IndexPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put points")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO index_points (series_id, year, month, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(series_id, year, month) DO UPDATE SET
			value = excluded.value
	`

	for _, p := range points {
		if _, err := tx.ExecContext(ctx, query,
			string(p.SeriesID), p.Month.Year, int(p.Month.Mon), p.Value.String()); err != nil {
			return eris.Wrapf(err, "sqlite: put point %s %s", p.SeriesID, p.Month)
		}
	}
	return tx.Commit()
}

// PutFormulation inserts or replaces a formulation with its components.
func (s *Store) PutFormulation(ctx context.Context, f pricing.Formulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put formulation")
	}
	defer tx.Rollback()

	if err := putFormulationTx(ctx, tx, f); err != nil {
		return err
	}
	return tx.Commit()
}

func putFormulationTx(ctx context.Context, tx *sql.Tx, f pricing.Formulation) error {
	query := `
		INSERT INTO formulations (id, product_id, name, base_price, currency, archived, version, cloned_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			name = excluded.name,
			base_price = excluded.base_price,
			currency = excluded.currency,
			archived = excluded.archived,
			version = excluded.version,
			cloned_from = excluded.cloned_from
	`

	var clonedFrom *string
	if f.ClonedFrom != nil {
		v := string(*f.ClonedFrom)
		clonedFrom = &v
	}

	_, err := tx.ExecContext(ctx, query,
		string(f.ID), string(f.ProductID), f.Name, f.BasePrice.String(), f.Currency,
		boolInt(f.Archived), f.Version, clonedFrom)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put formulation %s", f.ID)
	}

	// Components are replaced wholesale to keep ordering authoritative.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM formulation_components WHERE formulation_id = ?", string(f.ID)); err != nil {
		return eris.Wrapf(err, "sqlite: clear formulation components %s", f.ID)
	}
	for i, c := range f.Components {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO formulation_components (formulation_id, position, series_id, weight_pct, base_value)
			 VALUES (?, ?, ?, ?, ?)`,
			string(f.ID), i, string(c.SeriesID), c.WeightPct.String(), decimalPtr(c.BaseValue))
		if err != nil {
			return eris.Wrapf(err, "sqlite: put formulation component %s[%d]", f.ID, i)
		}
	}
	return nil
}

// ArchiveFormulation soft-disables a formulation. Archived formulations keep
// pricing lines that already reference them.
func (s *Store) ArchiveFormulation(ctx context.Context, id pricing.FormulationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE formulations SET archived = 1 WHERE id = ?", string(id))
	if err != nil {
		return eris.Wrapf(err, "sqlite: archive formulation %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	return nil
}

// CloneFormulation copies a formulation into a new active version and
// returns the copy.
func (s *Store) CloneFormulation(ctx context.Context, id, newID pricing.FormulationID) (*pricing.Formulation, error) {
	s.mu.Lock()
	src, err := s.getFormulation(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if existing, _ := s.getFormulation(ctx, newID); existing != nil {
		s.mu.Unlock()
		return nil, &pricing.ConfigError{Kind: "formulation", ID: string(newID), Reason: "clone target id already exists"}
	}
	s.mu.Unlock()

	from := src.ID
	clone := *src
	clone.ID = newID
	clone.Archived = false
	clone.Version = src.Version + 1
	clone.ClonedFrom = &from
	clone.Components = append([]pricing.FormulationComponent(nil), src.Components...)

	if err := s.PutFormulation(ctx, clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

// PutPolicy inserts or replaces an escalation policy.
func (s *Store) PutPolicy(ctx context.Context, p pricing.EscalationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put policy")
	}
	defer tx.Rollback()

	mode := "none"
	var rate, frequency, compounding *string
	var components []pricing.EscalationComponent

	switch m := p.Mode.(type) {
	case pricing.RateMode:
		mode = "rate"
		r, f, c := m.Rate.String(), string(m.Frequency), string(m.Compounding)
		rate, frequency, compounding = &r, &f, &c
	case pricing.IndexMode:
		mode = "index"
		components = m.Components
	}

	query := `
		INSERT INTO escalation_policies
			(id, name, scope, start_year, start_month, mode, rate, frequency, compounding, cap_pct, floor_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			scope = excluded.scope,
			start_year = excluded.start_year,
			start_month = excluded.start_month,
			mode = excluded.mode,
			rate = excluded.rate,
			frequency = excluded.frequency,
			compounding = excluded.compounding,
			cap_pct = excluded.cap_pct,
			floor_pct = excluded.floor_pct
	`

	_, err = tx.ExecContext(ctx, query,
		string(p.ID), p.Name, string(p.Scope), p.Start.Year, int(p.Start.Mon),
		mode, rate, frequency, compounding, decimalPtr(p.CapPct), decimalPtr(p.FloorPct))
	if err != nil {
		return eris.Wrapf(err, "sqlite: put policy %s", p.ID)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM escalation_components WHERE policy_id = ?", string(p.ID)); err != nil {
		return eris.Wrapf(err, "sqlite: clear policy components %s", p.ID)
	}
	for i, c := range components {
		var baseYear, baseMonth *int
		if c.BaseMonth != nil {
			y, m := c.BaseMonth.Year, int(c.BaseMonth.Mon)
			baseYear, baseMonth = &y, &m
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO escalation_components (policy_id, position, series_id, weight_pct, base_value, base_year, base_month)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(p.ID), i, string(c.SeriesID), c.WeightPct.String(),
			decimalPtr(c.BaseValue), baseYear, baseMonth)
		if err != nil {
			return eris.Wrapf(err, "sqlite: put policy component %s[%d]", p.ID, i)
		}
	}
	return tx.Commit()
}

// PutScenario inserts or replaces a scenario with its lines and rebates.
func (s *Store) PutScenario(ctx context.Context, sc pricing.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put scenario")
	}
	defer tx.Rollback()

	var defaultPolicy *string
	if sc.DefaultPolicyID != nil {
		v := string(*sc.DefaultPolicyID)
		defaultPolicy = &v
	}

	query := `
		INSERT INTO scenarios (id, tenant_id, name, currency, start_year, start_month, duration_months, default_policy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			currency = excluded.currency,
			start_year = excluded.start_year,
			start_month = excluded.start_month,
			duration_months = excluded.duration_months,
			default_policy_id = excluded.default_policy_id
	`

	_, err = tx.ExecContext(ctx, query,
		string(sc.ID), sc.TenantID, sc.Name, sc.Currency,
		sc.Start.Year, int(sc.Start.Mon), sc.DurationMonths, defaultPolicy)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put scenario %s", sc.ID)
	}

	// Children cascade-delete and are rewritten in order.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM scenario_lines WHERE scenario_id = ?", string(sc.ID)); err != nil {
		return eris.Wrapf(err, "sqlite: clear scenario lines %s", sc.ID)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM rebates WHERE scenario_id = ?", string(sc.ID)); err != nil {
		return eris.Wrapf(err, "sqlite: clear scenario rebates %s", sc.ID)
	}

	for i, l := range sc.Lines {
		var formulationID, policyID *string
		if l.FormulationID != nil {
			v := string(*l.FormulationID)
			formulationID = &v
		}
		if l.PolicyID != nil {
			v := string(*l.PolicyID)
			policyID = &v
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO scenario_lines
				(id, scenario_id, position, kind, name, product_id, quantity, unit_price, unit_cost,
				 currency, frequency, start_year, start_month, duration_months, formulation_id, policy_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(l.ID), string(sc.ID), i, string(l.Kind), l.Name, string(l.ProductID),
			l.Quantity.String(), l.UnitPrice.String(), l.UnitCost.String(), l.Currency,
			string(l.Frequency), l.Start.Year, int(l.Start.Mon), l.DurationMonths,
			formulationID, policyID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: put scenario line %s", l.ID)
		}
	}

	for i, r := range sc.Rebates {
		if err := putRebateTx(ctx, tx, sc.ID, i, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func putRebateTx(ctx context.Context, tx *sql.Tx, scenarioID pricing.ScenarioID, position int, r pricing.Rebate) error {
	var fromYear, fromMonth, toYear, toMonth *int
	if r.ValidFrom != nil {
		y, m := r.ValidFrom.Year, int(r.ValidFrom.Mon)
		fromYear, fromMonth = &y, &m
	}
	if r.ValidTo != nil {
		y, m := r.ValidTo.Year, int(r.ValidTo.Mon)
		toYear, toMonth = &y, &m
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO rebates
			(id, scenario_id, position, name, scope, kind, basis, method, active, product_id,
			 valid_from_year, valid_from_month, valid_to_year, valid_to_month, pay_month_lag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(scenarioID), position, r.Name, string(r.Scope), string(r.Kind),
		string(r.Basis), string(r.Method), boolInt(r.Active), string(r.ProductID),
		fromYear, fromMonth, toYear, toMonth, r.PayMonthLag)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put rebate %s", r.ID)
	}

	for i, t := range r.Tiers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rebate_tiers (scenario_id, rebate_position, position, min_value, max_value, value_pct, amount_flat)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(scenarioID), position, i, t.MinValue.String(),
			decimalPtr(t.MaxValue), decimalPtr(t.ValuePct), decimalPtr(t.AmountFlat))
		if err != nil {
			return eris.Wrapf(err, "sqlite: put rebate tier %s[%d]", r.ID, i)
		}
	}
	for i, l := range r.Lumps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rebate_lumps (scenario_id, rebate_position, position, year, month, amount)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(scenarioID), position, i, l.Month.Year, int(l.Month.Mon), l.Amount.String())
		if err != nil {
			return eris.Wrapf(err, "sqlite: put rebate lump %s[%d]", r.ID, i)
		}
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"rebate_lumps", "rebate_tiers", "rebates", "scenario_lines", "scenarios",
		"escalation_components", "escalation_policies",
		"formulation_components", "formulations",
		"index_points", "index_series",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return nil
}

// ListSeries returns all series rows ordered by code (for admin tooling and
// the import command's summary output).
func (s *Store) ListSeries(ctx context.Context) ([]pricing.IndexSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, name, unit, currency FROM index_series ORDER BY code ASC")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list series")
	}
	defer rows.Close()

	var out []pricing.IndexSeries
	for rows.Next() {
		var series pricing.IndexSeries
		var id string
		if err := rows.Scan(&id, &series.Code, &series.Name, &series.Unit, &series.Currency); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series")
		}
		series.ID = pricing.SeriesID(id)
		out = append(out, series)
	}
	return out, rows.Err()
}

// Helper functions

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func nullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d := pricing.MustParseDecimal(ns.String)
	return &d
}

func nullMonth(year, month sql.NullInt64) *pricing.Month {
	if !year.Valid || !month.Valid {
		return nil
	}
	m := pricing.NewMonth(int(year.Int64), time.Month(month.Int64))
	return &m
}
