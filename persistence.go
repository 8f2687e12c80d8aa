package shipwright

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	gorm "gorm.io/gorm"
)

type PersistenceConfig struct {
	Name          string   `toml:"name"`
	Path          string   `toml:"path"`
	SQLitePragmas []string `toml:"sqlite_pragmas"`
	SQLiteOptions []string `toml:"sqlite_options"`
}

// Run is one full evolution run: its configuration snapshot and terminal
// outcome, with candidates hanging off it per generation.
type Run struct {
	ID          uint
	Label       string
	Solver      string // "fi2pop" or "mapelites"
	Seed        int64
	Generations int
	BestFitness float64
	BestString  string
}

// Candidate is the persisted form of a CandidateSolution at one generation.
type Candidate struct {
	ID         uint
	RunID      uint
	Generation int
	HLString   string
	LLString   string
	Feasible   bool
	CFitness   float64
	NCV        int
	Age        int
	BDescX     float64
	BDescY     float64
}

type Persistence struct {
	Config *PersistenceConfig
	DB     *gorm.DB
}

func NewPersistence(config *PersistenceConfig) (*Persistence, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(config.Path) == 0 {
		return nil, fmt.Errorf("Path to database must be defined")
	}

	if len(config.Name) == 0 {
		return nil, fmt.Errorf("Name of database must be defined")
	}

	var pragmas strings.Builder
	pragma_count := len(config.SQLitePragmas) - 1
	for i, prag := range config.SQLitePragmas {
		pragmas.WriteString(fmt.Sprintf("_pragma=%s", prag))
		if i < pragma_count {
			pragmas.WriteRune('&')
		}
	}

	var options strings.Builder
	option_count := len(config.SQLiteOptions) - 1
	for i, opt := range config.SQLiteOptions {
		options.WriteString(opt)
		if i < option_count {
			options.WriteRune('&')
		}
	}

	var path strings.Builder
	path.WriteString(filepath.Join(config.Path, config.Name))
	if pragmas.Len() > 0 {
		path.WriteRune('?')
		path.WriteString(pragmas.String())
		if options.Len() > 0 {
			path.WriteRune('&')
			path.WriteString(options.String())
		}
	} else if options.Len() > 0 {
		path.WriteRune('?')
		path.WriteString(options.String())
	}

	db, err := gorm.Open(sqlite.Open(path.String()), &gorm.Config{})

	if err != nil {
		return nil, err
	}

	db = db.Session(&gorm.Session{PrepareStmt: true, CreateBatchSize: 1000})

	p := &Persistence{Config: config, DB: db}
	if err = p.initialize(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Persistence) initialize() error {
	if err := p.DB.AutoMigrate(
		&Run{},
		&Candidate{},
		&Evaluation{},
	); err != nil {
		return err
	}

	return nil
}

func (p *Persistence) Shutdown() {
	if sqldb, err := p.DB.DB(); err != nil {
		log.Fatalf("Failed to retrieve raw DB: %v", err)
	} else {
		sqldb.Close()
	}
}

func (p *Persistence) CreateRun(run *Run) (uint, error) {
	if run == nil {
		return 0, fmt.Errorf("Run cannot be nil")
	}

	if result := p.DB.Create(run); result.Error != nil {
		return 0, fmt.Errorf("Failed to call gorm.Create(): %w", result.Error)
	}

	return run.ID, nil
}

// SaveGeneration persists a pool snapshot and its evaluations in one batch.
func (p *Persistence) SaveGeneration(runID uint, gen int, pool []*CandidateSolution, evals []*Evaluation) error {
	if len(pool) != len(evals) {
		return fmt.Errorf("pool/evaluation mismatch: %d candidates, %d evaluations", len(pool), len(evals))
	}
	if len(pool) == 0 {
		return nil
	}

	rows := make([]*Candidate, len(pool))
	for i, cs := range pool {
		rows[i] = &Candidate{
			RunID:      runID,
			Generation: gen,
			HLString:   cs.String,
			LLString:   cs.LLString,
			Feasible:   cs.Feasible,
			CFitness:   cs.CFitness,
			NCV:        cs.NCV,
			Age:        cs.Age,
			BDescX:     cs.BDescs[0],
			BDescY:     cs.BDescs[1],
		}
	}
	if result := p.DB.Create(rows); result.Error != nil {
		return fmt.Errorf("Failed to persist candidates: %w", result.Error)
	}
	for i, e := range evals {
		e.CandidateID = rows[i].ID
	}
	if result := p.DB.Create(evals); result.Error != nil {
		return fmt.Errorf("Failed to persist evaluations: %w", result.Error)
	}
	return nil
}

// FinishRun records the run's terminal best.
func (p *Persistence) FinishRun(runID uint, generations int, best *CandidateSolution) error {
	updates := map[string]interface{}{"generations": generations}
	if best != nil {
		updates["best_fitness"] = best.CFitness
		updates["best_string"] = best.String
	}
	if result := p.DB.Model(&Run{}).Where("id = ?", runID).Updates(updates); result.Error != nil {
		return fmt.Errorf("Failed to finalize run: %w", result.Error)
	}
	return nil
}

// RunMetrics holds aggregate fitness metrics for one generation of a run.
type RunMetrics struct {
	FeasibleCount   uint
	InfeasibleCount uint
	BestFitness     float64
	AvgFitness      float64
	AvgViolations   float64
}

// QueryMetrics aggregates a generation's feasible fitness and infeasible
// violation counts straight from the candidate table.
func (p *Persistence) QueryMetrics(runID uint, gen int) (*RunMetrics, error) {
	m := &RunMetrics{}

	row := p.DB.Raw(`SELECT COUNT(*), COALESCE(MAX(c_fitness), 0), COALESCE(AVG(c_fitness), 0)
		FROM candidates
		WHERE run_id = ? AND generation = ? AND feasible = ?`, runID, gen, true).Row()
	var count int64
	var best, avg float64
	if err := row.Scan(&count, &best, &avg); err != nil {
		return nil, err
	}
	m.FeasibleCount = uint(count)
	m.BestFitness = best
	m.AvgFitness = avg

	row = p.DB.Raw(`SELECT COUNT(*), COALESCE(AVG(ncv), 0)
		FROM candidates
		WHERE run_id = ? AND generation = ? AND feasible = ?`, runID, gen, false).Row()
	var icount int64
	var avgNCV float64
	if err := row.Scan(&icount, &avgNCV); err != nil {
		return nil, err
	}
	m.InfeasibleCount = uint(icount)
	m.AvgViolations = avgNCV
	return m, nil
}

// QueryBestCandidate finds the fittest feasible candidate of a run, latest
// generation winning ties. Returns nil, nil if the run produced none.
func (p *Persistence) QueryBestCandidate(runID uint) (*Candidate, error) {
	c := &Candidate{}
	err := p.DB.Raw(`SELECT id, run_id, generation, hl_string, ll_string, feasible,
		c_fitness, ncv, age, b_desc_x, b_desc_y
		FROM candidates
		WHERE run_id = ? AND feasible = ?
		ORDER BY c_fitness DESC, generation DESC
		LIMIT 1`, runID, true).Row().
		Scan(&c.ID, &c.RunID, &c.Generation, &c.HLString, &c.LLString, &c.Feasible,
			&c.CFitness, &c.NCV, &c.Age, &c.BDescX, &c.BDescY)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}
