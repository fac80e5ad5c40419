/*
Package postgres provides a pgx-backed implementation of pricing.Store for
deployments where the business-case engine runs inside the multi-tenant CRM.

PURPOSE:
  Same contract and schema shape as store/sqlite, on PostgreSQL. Index point
  imports go through the COPY protocol via a temp table, which is the fast
  path for the monthly reference-data refresh (hundreds of series, years of
  history per tenant).

ERROR CONTRACT:
  pgx.ErrNoRows is translated into the pricing package's typed errors
  (NotFoundError, MissingDataError); everything else is wrapped with eris so
  callers get stack-traced infrastructure errors but can still errors.As the
  domain conditions.

POOLING:
  Connection pooling is pgxpool with conservative defaults (10 max / 2 min),
  tunable through PoolConfig. Hot index lookups are prepared on every new
  connection.

SEE ALSO:
  - pricing/store.go: the interfaces this implements
  - store/sqlite: single-file deployment of the same schema
*/
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// Store implements pricing.Store using pgxpool.
type Store struct {
	pool    Pool
	closeFn func()
}

var _ pricing.Store = (*Store)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// monthly pricing loop hits the index lookups once per component per month,
// so these dominate read traffic.
var preparedStatements = map[string]string{
	"get_point": `SELECT value FROM index_points WHERE series_id = $1 AND year = $2 AND month = $3`,
	"latest_point": `SELECT year, month, value FROM index_points
		WHERE series_id = $1 AND (year < $2 OR (year = $2 AND month <= $3))
		ORDER BY year DESC, month DESC LIMIT 1`,
	"get_series": `SELECT id, code, name, unit, currency FROM index_series WHERE id = $1`,
}

// New creates a Store with a connection pool.
func New(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Store{pool: pool, closeFn: pool.Close}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS index_series (
	id       TEXT PRIMARY KEY,
	code     TEXT NOT NULL,
	name     TEXT NOT NULL,
	unit     TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS index_points (
	series_id TEXT NOT NULL REFERENCES index_series(id),
	year      INTEGER NOT NULL,
	month     INTEGER NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (series_id, year, month)
);

CREATE INDEX IF NOT EXISTS idx_index_points_series_month
	ON index_points(series_id, year DESC, month DESC);

CREATE TABLE IF NOT EXISTS formulations (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	base_price  TEXT NOT NULL,
	currency    TEXT NOT NULL DEFAULT '',
	archived    BOOLEAN NOT NULL DEFAULT FALSE,
	version     INTEGER NOT NULL DEFAULT 0,
	cloned_from TEXT
);

CREATE TABLE IF NOT EXISTS formulation_components (
	formulation_id TEXT NOT NULL REFERENCES formulations(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	series_id      TEXT NOT NULL,
	weight_pct     TEXT NOT NULL,
	base_value     TEXT,
	PRIMARY KEY (formulation_id, position)
);

CREATE TABLE IF NOT EXISTS escalation_policies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	scope       TEXT NOT NULL,
	start_year  INTEGER NOT NULL,
	start_month INTEGER NOT NULL,
	mode        TEXT NOT NULL,
	rate        TEXT,
	frequency   TEXT,
	compounding TEXT,
	cap_pct     TEXT,
	floor_pct   TEXT
);

CREATE TABLE IF NOT EXISTS escalation_components (
	policy_id  TEXT NOT NULL REFERENCES escalation_policies(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	series_id  TEXT NOT NULL,
	weight_pct TEXT NOT NULL,
	base_value TEXT,
	base_year  INTEGER,
	base_month INTEGER,
	PRIMARY KEY (policy_id, position)
);

CREATE TABLE IF NOT EXISTS scenarios (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	currency          TEXT NOT NULL DEFAULT '',
	start_year        INTEGER NOT NULL,
	start_month       INTEGER NOT NULL,
	duration_months   INTEGER NOT NULL,
	default_policy_id TEXT
);

CREATE TABLE IF NOT EXISTS scenario_lines (
	id              TEXT NOT NULL,
	scenario_id     TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	product_id      TEXT NOT NULL DEFAULT '',
	quantity        TEXT NOT NULL,
	unit_price      TEXT NOT NULL,
	unit_cost       TEXT NOT NULL,
	currency        TEXT NOT NULL DEFAULT '',
	frequency       TEXT NOT NULL,
	start_year      INTEGER NOT NULL,
	start_month     INTEGER NOT NULL,
	duration_months INTEGER NOT NULL,
	formulation_id  TEXT,
	policy_id       TEXT,
	PRIMARY KEY (scenario_id, position)
);

CREATE INDEX IF NOT EXISTS idx_scenario_lines_scenario ON scenario_lines(scenario_id);

CREATE TABLE IF NOT EXISTS rebates (
	id               TEXT NOT NULL,
	scenario_id      TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	scope            TEXT NOT NULL,
	kind             TEXT NOT NULL,
	basis            TEXT NOT NULL,
	method           TEXT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	product_id       TEXT NOT NULL DEFAULT '',
	valid_from_year  INTEGER,
	valid_from_month INTEGER,
	valid_to_year    INTEGER,
	valid_to_month   INTEGER,
	pay_month_lag    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (scenario_id, position)
);

CREATE TABLE IF NOT EXISTS rebate_tiers (
	scenario_id     TEXT NOT NULL,
	rebate_position INTEGER NOT NULL,
	position        INTEGER NOT NULL,
	min_value       TEXT NOT NULL,
	max_value       TEXT,
	value_pct       TEXT,
	amount_flat     TEXT,
	PRIMARY KEY (scenario_id, rebate_position, position),
	FOREIGN KEY (scenario_id, rebate_position)
		REFERENCES rebates(scenario_id, position) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rebate_lumps (
	scenario_id     TEXT NOT NULL,
	rebate_position INTEGER NOT NULL,
	position        INTEGER NOT NULL,
	year            INTEGER NOT NULL,
	month           INTEGER NOT NULL,
	amount          TEXT NOT NULL,
	PRIMARY KEY (scenario_id, rebate_position, position),
	FOREIGN KEY (scenario_id, rebate_position)
		REFERENCES rebates(scenario_id, position) ON DELETE CASCADE
);
`

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// =============================================================================
// INDEX READS (pricing.IndexReader)
// =============================================================================

func (s *Store) GetSeries(ctx context.Context, id pricing.SeriesID) (*pricing.IndexSeries, error) {
	var series pricing.IndexSeries
	var sid string

	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, unit, currency FROM index_series WHERE id = $1`,
		string(id),
	).Scan(&sid, &series.Code, &series.Name, &series.Unit, &series.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &pricing.NotFoundError{Kind: "index_series", ID: string(id)}
		}
		return nil, eris.Wrapf(err, "postgres: get series %s", id)
	}
	series.ID = pricing.SeriesID(sid)
	return &series, nil
}

func (s *Store) GetPoint(ctx context.Context, id pricing.SeriesID, m pricing.Month) (decimal.Decimal, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM index_points WHERE series_id = $1 AND year = $2 AND month = $3`,
		string(id), m.Year, int(m.Mon),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, &pricing.MissingDataError{SeriesID: id, Month: m, Exact: true}
		}
		return decimal.Zero, eris.Wrapf(err, "postgres: get point %s %s", id, m)
	}
	return pricing.MustParseDecimal(value), nil
}

func (s *Store) LatestPoint(ctx context.Context, id pricing.SeriesID, m pricing.Month) (pricing.IndexPoint, error) {
	var year, month int
	var value string

	err := s.pool.QueryRow(ctx,
		`SELECT year, month, value FROM index_points
		 WHERE series_id = $1 AND (year < $2 OR (year = $2 AND month <= $3))
		 ORDER BY year DESC, month DESC LIMIT 1`,
		string(id), m.Year, int(m.Mon),
	).Scan(&year, &month, &value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.IndexPoint{}, &pricing.MissingDataError{SeriesID: id, Month: m, Exact: false}
		}
		return pricing.IndexPoint{}, eris.Wrapf(err, "postgres: latest point %s %s", id, m)
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

func (s *Store) GetFormulation(ctx context.Context, id pricing.FormulationID) (*pricing.Formulation, error) {
	var f pricing.Formulation
	var fid, productID, basePrice string
	var clonedFrom *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, name, base_price, currency, archived, version, cloned_from
		 FROM formulations WHERE id = $1`,
		string(id),
	).Scan(&fid, &productID, &f.Name, &basePrice, &f.Currency,
		&f.Archived, &f.Version, &clonedFrom)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
		}
		return nil, eris.Wrapf(err, "postgres: get formulation %s", id)
	}
	f.ID = pricing.FormulationID(fid)
	f.ProductID = pricing.ProductID(productID)
	f.BasePrice = pricing.MustParseDecimal(basePrice)
	if clonedFrom != nil {
		from := pricing.FormulationID(*clonedFrom)
		f.ClonedFrom = &from
	}

	rows, err := s.pool.Query(ctx,
		`SELECT series_id, weight_pct, base_value FROM formulation_components
		 WHERE formulation_id = $1 ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get formulation components %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var c pricing.FormulationComponent
		var seriesID, weight string
		var baseValue *string
		if err := rows.Scan(&seriesID, &weight, &baseValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan formulation component")
		}
		c.SeriesID = pricing.SeriesID(seriesID)
		c.WeightPct = pricing.MustParseDecimal(weight)
		c.BaseValue = decimalFromPtr(baseValue)
		f.Components = append(f.Components, c)
	}
	return &f, eris.Wrap(rows.Err(), "postgres: iterate formulation components")
}

// =============================================================================
// POLICY READS (pricing.PolicyReader)
// =============================================================================

func (s *Store) GetPolicy(ctx context.Context, id pricing.PolicyID) (*pricing.EscalationPolicy, error) {
	var p pricing.EscalationPolicy
	var pid, scope, mode string
	var startYear, startMonth int
	var rate, frequency, compounding, capPct, floorPct *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, scope, start_year, start_month, mode, rate, frequency, compounding, cap_pct, floor_pct
		 FROM escalation_policies WHERE id = $1`,
		string(id),
	).Scan(&pid, &p.Name, &scope, &startYear, &startMonth, &mode,
		&rate, &frequency, &compounding, &capPct, &floorPct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &pricing.NotFoundError{Kind: "escalation_policy", ID: string(id)}
		}
		return nil, eris.Wrapf(err, "postgres: get policy %s", id)
	}

	p.ID = pricing.PolicyID(pid)
	p.Scope = pricing.EscalationScope(scope)
	p.Start = pricing.NewMonth(startYear, time.Month(startMonth))
	p.CapPct = decimalFromPtr(capPct)
	p.FloorPct = decimalFromPtr(floorPct)

	switch mode {
	case "rate":
		rm := pricing.RateMode{}
		if rate != nil {
			rm.Rate = pricing.MustParseDecimal(*rate)
		}
		if frequency != nil {
			rm.Frequency = pricing.EscalationFrequency(*frequency)
		}
		if compounding != nil {
			rm.Compounding = pricing.Compounding(*compounding)
		}
		p.Mode = rm
	case "index":
		components, err := s.policyComponents(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Mode = pricing.IndexMode{Components: components}
	default:
		p.Mode = nil
	}
	return &p, nil
}

func (s *Store) policyComponents(ctx context.Context, id pricing.PolicyID) ([]pricing.EscalationComponent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT series_id, weight_pct, base_value, base_year, base_month
		 FROM escalation_components WHERE policy_id = $1 ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get policy components %s", id)
	}
	defer rows.Close()

	var components []pricing.EscalationComponent
	for rows.Next() {
		var c pricing.EscalationComponent
		var seriesID, weight string
		var baseValue *string
		var baseYear, baseMonth *int
		if err := rows.Scan(&seriesID, &weight, &baseValue, &baseYear, &baseMonth); err != nil {
			return nil, eris.Wrap(err, "postgres: scan policy component")
		}
		c.SeriesID = pricing.SeriesID(seriesID)
		c.WeightPct = pricing.MustParseDecimal(weight)
		c.BaseValue = decimalFromPtr(baseValue)
		if baseYear != nil && baseMonth != nil {
			m := pricing.NewMonth(*baseYear, time.Month(*baseMonth))
			c.BaseMonth = &m
		}
		components = append(components, c)
	}
	return components, eris.Wrap(rows.Err(), "postgres: iterate policy components")
}

// =============================================================================
// SCENARIO READS (pricing.ScenarioReader)
// =============================================================================

func (s *Store) GetScenario(ctx context.Context, id pricing.ScenarioID) (*pricing.Scenario, error) {
	var sc pricing.Scenario
	var sid string
	var defaultPolicy *string
	var startYear, startMonth int

	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, currency, start_year, start_month, duration_months, default_policy_id
		 FROM scenarios WHERE id = $1`,
		string(id),
	).Scan(&sid, &sc.TenantID, &sc.Name, &sc.Currency, &startYear, &startMonth,
		&sc.DurationMonths, &defaultPolicy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &pricing.NotFoundError{Kind: "scenario", ID: string(id)}
		}
		return nil, eris.Wrapf(err, "postgres: get scenario %s", id)
	}

	sc.ID = pricing.ScenarioID(sid)
	sc.Start = pricing.NewMonth(startYear, time.Month(startMonth))
	if defaultPolicy != nil {
		pid := pricing.PolicyID(*defaultPolicy)
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
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, product_id, quantity, unit_price, unit_cost, currency,
		        frequency, start_year, start_month, duration_months, formulation_id, policy_id
		 FROM scenario_lines WHERE scenario_id = $1 ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scenario lines %s", id)
	}
	defer rows.Close()

	var lines []pricing.Line
	for rows.Next() {
		var l pricing.Line
		var lid, kind, productID, quantity, unitPrice, unitCost, frequency string
		var formulationID, policyID *string
		var startYear, startMonth int

		if err := rows.Scan(&lid, &kind, &l.Name, &productID,
			&quantity, &unitPrice, &unitCost,
			&l.Currency, &frequency, &startYear, &startMonth, &l.DurationMonths,
			&formulationID, &policyID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scenario line")
		}

		l.ID = pricing.LineID(lid)
		l.Kind = pricing.LineKind(kind)
		l.ProductID = pricing.ProductID(productID)
		l.Quantity = pricing.MustParseDecimal(quantity)
		l.UnitPrice = pricing.MustParseDecimal(unitPrice)
		l.UnitCost = pricing.MustParseDecimal(unitCost)
		l.Frequency = pricing.LineFrequency(frequency)
		l.Start = pricing.NewMonth(startYear, time.Month(startMonth))
		if formulationID != nil {
			fid := pricing.FormulationID(*formulationID)
			l.FormulationID = &fid
		}
		if policyID != nil {
			pid := pricing.PolicyID(*policyID)
			l.PolicyID = &pid
		}
		lines = append(lines, l)
	}
	return lines, eris.Wrap(rows.Err(), "postgres: iterate scenario lines")
}

func (s *Store) scenarioRebates(ctx context.Context, id pricing.ScenarioID) ([]pricing.Rebate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT position, id, name, scope, kind, basis, method, active, product_id,
		        valid_from_year, valid_from_month, valid_to_year, valid_to_month, pay_month_lag
		 FROM rebates WHERE scenario_id = $1 ORDER BY position ASC`,
		string(id),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scenario rebates %s", id)
	}
	defer rows.Close()

	var rebates []pricing.Rebate
	var positions []int
	for rows.Next() {
		var r pricing.Rebate
		var position int
		var rid, scope, kind, basis, method, productID string
		var fromYear, fromMonth, toYear, toMonth *int

		if err := rows.Scan(&position, &rid, &r.Name, &scope, &kind, &basis, &method,
			&r.Active, &productID,
			&fromYear, &fromMonth, &toYear, &toMonth, &r.PayMonthLag); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rebate")
		}

		r.ID = pricing.RebateID(rid)
		r.ProductID = pricing.ProductID(productID)
		r.Scope = pricing.RebateScope(scope)
		r.Kind = pricing.RebateKind(kind)
		r.Basis = pricing.RebateBasis(basis)
		r.Method = pricing.AccrualMethod(method)
		r.ValidFrom = monthFromPtr(fromYear, fromMonth)
		r.ValidTo = monthFromPtr(toYear, toMonth)

		rebates = append(rebates, r)
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rebates")
	}
	rows.Close()

	for i := range rebates {
		if err := s.loadRebateChildren(ctx, id, positions[i], &rebates[i]); err != nil {
			return nil, err
		}
	}
	return rebates, nil
}

func (s *Store) loadRebateChildren(ctx context.Context, id pricing.ScenarioID, position int, r *pricing.Rebate) error {
	tierRows, err := s.pool.Query(ctx,
		`SELECT min_value, max_value, value_pct, amount_flat FROM rebate_tiers
		 WHERE scenario_id = $1 AND rebate_position = $2 ORDER BY position ASC`,
		string(id), position,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: get rebate tiers %s", r.ID)
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var t pricing.RebateTier
		var minValue string
		var maxValue, valuePct, amountFlat *string
		if err := tierRows.Scan(&minValue, &maxValue, &valuePct, &amountFlat); err != nil {
			return eris.Wrap(err, "postgres: scan rebate tier")
		}
		t.MinValue = pricing.MustParseDecimal(minValue)
		t.MaxValue = decimalFromPtr(maxValue)
		t.ValuePct = decimalFromPtr(valuePct)
		t.AmountFlat = decimalFromPtr(amountFlat)
		r.Tiers = append(r.Tiers, t)
	}
	if err := tierRows.Err(); err != nil {
		return eris.Wrap(err, "postgres: iterate rebate tiers")
	}
	tierRows.Close()

	lumpRows, err := s.pool.Query(ctx,
		`SELECT year, month, amount FROM rebate_lumps
		 WHERE scenario_id = $1 AND rebate_position = $2 ORDER BY position ASC`,
		string(id), position,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: get rebate lumps %s", r.ID)
	}
	defer lumpRows.Close()

	for lumpRows.Next() {
		var year, month int
		var amount string
		var lump pricing.RebateLump
		if err := lumpRows.Scan(&year, &month, &amount); err != nil {
			return eris.Wrap(err, "postgres: scan rebate lump")
		}
		lump.Month = pricing.NewMonth(year, time.Month(month))
		lump.Amount = pricing.MustParseDecimal(amount)
		r.Lumps = append(r.Lumps, lump)
	}
	return eris.Wrap(lumpRows.Err(), "postgres: iterate rebate lumps")
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) PutSeries(ctx context.Context, series pricing.IndexSeries) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO index_series (id, code, name, unit, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   code = $2, name = $3, unit = $4, currency = $5`,
		string(series.ID), series.Code, series.Name, series.Unit, series.Currency,
	)
	return eris.Wrapf(err, "postgres: put series %s", series.ID)
}

// pointColumns is the COPY column order used by PutPoints.
var pointColumns = []string{"series_id", "year", "month", "value"}

// PutPoints bulk-upserts points via a temp table and the COPY protocol:
// 1. CREATE TEMP TABLE ... ON COMMIT DROP
// 2. COPY the batch into the temp table
// 3. INSERT INTO index_points SELECT ... ON CONFLICT DO UPDATE
// A monthly import replays entire series histories, so the batch sizes make
// row-at-a-time upserts noticeably slow.
func (s *Store) PutPoints(ctx context.Context, points []pricing.IndexPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: put points: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`CREATE TEMP TABLE _tmp_index_points (LIKE index_points INCLUDING DEFAULTS) ON COMMIT DROP`,
	); err != nil {
		return eris.Wrap(err, "postgres: put points: create temp table")
	}

	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{string(p.SeriesID), p.Month.Year, int(p.Month.Mon), p.Value.String()}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"_tmp_index_points"}, pointColumns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrap(err, "postgres: put points: COPY into temp table")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO index_points (series_id, year, month, value)
		 SELECT series_id, year, month, value FROM _tmp_index_points
		 ON CONFLICT (series_id, year, month) DO UPDATE SET value = EXCLUDED.value`,
	); err != nil {
		return eris.Wrap(err, "postgres: put points: upsert from temp table")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: put points: commit")
}

func (s *Store) PutFormulation(ctx context.Context, f pricing.Formulation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: put formulation: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := putFormulationTx(ctx, tx, f); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: put formulation: commit")
}

func putFormulationTx(ctx context.Context, tx pgx.Tx, f pricing.Formulation) error {
	var clonedFrom *string
	if f.ClonedFrom != nil {
		v := string(*f.ClonedFrom)
		clonedFrom = &v
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO formulations (id, product_id, name, base_price, currency, archived, version, cloned_from)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   product_id = $2, name = $3, base_price = $4, currency = $5,
		   archived = $6, version = $7, cloned_from = $8`,
		string(f.ID), string(f.ProductID), f.Name, f.BasePrice.String(), f.Currency,
		f.Archived, f.Version, clonedFrom,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put formulation %s", f.ID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM formulation_components WHERE formulation_id = $1`, string(f.ID),
	); err != nil {
		return eris.Wrapf(err, "postgres: clear formulation components %s", f.ID)
	}
	for i, c := range f.Components {
		if _, err := tx.Exec(ctx,
			`INSERT INTO formulation_components (formulation_id, position, series_id, weight_pct, base_value)
			 VALUES ($1, $2, $3, $4, $5)`,
			string(f.ID), i, string(c.SeriesID), c.WeightPct.String(), decimalToPtr(c.BaseValue),
		); err != nil {
			return eris.Wrapf(err, "postgres: put formulation component %s[%d]", f.ID, i)
		}
	}
	return nil
}

func (s *Store) ArchiveFormulation(ctx context.Context, id pricing.FormulationID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE formulations SET archived = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return eris.Wrapf(err, "postgres: archive formulation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	return nil
}

func (s *Store) CloneFormulation(ctx context.Context, id, newID pricing.FormulationID) (*pricing.Formulation, error) {
	src, err := s.GetFormulation(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing, _ := s.GetFormulation(ctx, newID); existing != nil {
		return nil, &pricing.ConfigError{Kind: "formulation", ID: string(newID), Reason: "clone target id already exists"}
	}

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

func (s *Store) PutPolicy(ctx context.Context, p pricing.EscalationPolicy) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: put policy: begin tx")
	}
	defer tx.Rollback(ctx)

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

	_, err = tx.Exec(ctx,
		`INSERT INTO escalation_policies
		   (id, name, scope, start_year, start_month, mode, rate, frequency, compounding, cap_pct, floor_pct)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   name = $2, scope = $3, start_year = $4, start_month = $5, mode = $6,
		   rate = $7, frequency = $8, compounding = $9, cap_pct = $10, floor_pct = $11`,
		string(p.ID), p.Name, string(p.Scope), p.Start.Year, int(p.Start.Mon),
		mode, rate, frequency, compounding, decimalToPtr(p.CapPct), decimalToPtr(p.FloorPct),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put policy %s", p.ID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM escalation_components WHERE policy_id = $1`, string(p.ID),
	); err != nil {
		return eris.Wrapf(err, "postgres: clear policy components %s", p.ID)
	}
	for i, c := range components {
		var baseYear, baseMonth *int
		if c.BaseMonth != nil {
			y, m := c.BaseMonth.Year, int(c.BaseMonth.Mon)
			baseYear, baseMonth = &y, &m
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO escalation_components (policy_id, position, series_id, weight_pct, base_value, base_year, base_month)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(p.ID), i, string(c.SeriesID), c.WeightPct.String(),
			decimalToPtr(c.BaseValue), baseYear, baseMonth,
		); err != nil {
			return eris.Wrapf(err, "postgres: put policy component %s[%d]", p.ID, i)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: put policy: commit")
}

func (s *Store) PutScenario(ctx context.Context, sc pricing.Scenario) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: put scenario: begin tx")
	}
	defer tx.Rollback(ctx)

	var defaultPolicy *string
	if sc.DefaultPolicyID != nil {
		v := string(*sc.DefaultPolicyID)
		defaultPolicy = &v
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO scenarios (id, tenant_id, name, currency, start_year, start_month, duration_months, default_policy_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   tenant_id = $2, name = $3, currency = $4, start_year = $5, start_month = $6,
		   duration_months = $7, default_policy_id = $8`,
		string(sc.ID), sc.TenantID, sc.Name, sc.Currency,
		sc.Start.Year, int(sc.Start.Mon), sc.DurationMonths, defaultPolicy,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put scenario %s", sc.ID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM scenario_lines WHERE scenario_id = $1`, string(sc.ID),
	); err != nil {
		return eris.Wrapf(err, "postgres: clear scenario lines %s", sc.ID)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM rebates WHERE scenario_id = $1`, string(sc.ID),
	); err != nil {
		return eris.Wrapf(err, "postgres: clear scenario rebates %s", sc.ID)
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

		if _, err := tx.Exec(ctx,
			`INSERT INTO scenario_lines
			   (id, scenario_id, position, kind, name, product_id, quantity, unit_price, unit_cost,
			    currency, frequency, start_year, start_month, duration_months, formulation_id, policy_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			string(l.ID), string(sc.ID), i, string(l.Kind), l.Name, string(l.ProductID),
			l.Quantity.String(), l.UnitPrice.String(), l.UnitCost.String(), l.Currency,
			string(l.Frequency), l.Start.Year, int(l.Start.Mon), l.DurationMonths,
			formulationID, policyID,
		); err != nil {
			return eris.Wrapf(err, "postgres: put scenario line %s", l.ID)
		}
	}

	for i, r := range sc.Rebates {
		if err := putRebateTx(ctx, tx, sc.ID, i, r); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: put scenario: commit")
}

func putRebateTx(ctx context.Context, tx pgx.Tx, scenarioID pricing.ScenarioID, position int, r pricing.Rebate) error {
	var fromYear, fromMonth, toYear, toMonth *int
	if r.ValidFrom != nil {
		y, m := r.ValidFrom.Year, int(r.ValidFrom.Mon)
		fromYear, fromMonth = &y, &m
	}
	if r.ValidTo != nil {
		y, m := r.ValidTo.Year, int(r.ValidTo.Mon)
		toYear, toMonth = &y, &m
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO rebates
		   (id, scenario_id, position, name, scope, kind, basis, method, active, product_id,
		    valid_from_year, valid_from_month, valid_to_year, valid_to_month, pay_month_lag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		string(r.ID), string(scenarioID), position, r.Name, string(r.Scope), string(r.Kind),
		string(r.Basis), string(r.Method), r.Active, string(r.ProductID),
		fromYear, fromMonth, toYear, toMonth, r.PayMonthLag,
	); err != nil {
		return eris.Wrapf(err, "postgres: put rebate %s", r.ID)
	}

	for i, t := range r.Tiers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rebate_tiers (scenario_id, rebate_position, position, min_value, max_value, value_pct, amount_flat)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(scenarioID), position, i, t.MinValue.String(),
			decimalToPtr(t.MaxValue), decimalToPtr(t.ValuePct), decimalToPtr(t.AmountFlat),
		); err != nil {
			return eris.Wrapf(err, "postgres: put rebate tier %s[%d]", r.ID, i)
		}
	}
	for i, l := range r.Lumps {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rebate_lumps (scenario_id, rebate_position, position, year, month, amount)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			string(scenarioID), position, i, l.Month.Year, int(l.Month.Mon), l.Amount.String(),
		); err != nil {
			return eris.Wrapf(err, "postgres: put rebate lump %s[%d]", r.ID, i)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func decimalFromPtr(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d := pricing.MustParseDecimal(*s)
	return &d
}

func decimalToPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func monthFromPtr(year, month *int) *pricing.Month {
	if year == nil || month == nil {
		return nil
	}
	m := pricing.NewMonth(*year, time.Month(*month))
	return &m
}
