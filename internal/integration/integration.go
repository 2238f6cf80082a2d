// Package integration builds the ENIGH master dataset: it derives the family
// structure of every (folioviv, foliohog) group from the individuals table,
// joins the households and dwellings tables onto it and persists both results
// under the outputs folder.
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"enigh/domain/family"
	"enigh/internal/dataset"
	"enigh/internal/errors"
	"enigh/internal/logging"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Input file names inside ENIGH/<year>.
const (
	IndividualsFile = "poblacion.csv"
	HouseholdsFile  = "hogares.csv"
	DwellingsFile   = "viviendas.csv"
)

// Column names used by the integration.
const (
	ColFolioviv     = "folioviv"
	ColFoliohog     = "foliohog"
	ColNumren       = "numren"
	ColRelationship = "parentesco"
	ColSex          = "sexo"
	ColAge          = "edad"
	ColPartner      = "pareja"
	ColChildren     = "hijos"
	ColOtherAdults  = "otros_adultos"
	ColHeadSex      = "sexo_jefe"
	ColHeadAge      = "edad_jefe"
	ColStructure    = "estructura_familiar"
	ColYear         = "anio"
)

var (
	personColumns  = []string{ColFolioviv, ColFoliohog, ColNumren, ColRelationship, ColSex, ColAge}
	householdKeys  = []string{ColFolioviv, ColFoliohog}
	dwellingKeys   = []string{ColFolioviv}
	SummaryColumns = []string{
		ColFolioviv, ColFoliohog, ColPartner, ColChildren, ColOtherAdults,
		ColHeadSex, ColHeadAge, ColStructure,
	}
)

// SummaryFileName is the family-structure output for a year.
func SummaryFileName(year int) string {
	return fmt.Sprintf("estructura_familiar_%d.csv", year)
}

// MasterFileName is the master dataset output for a year.
func MasterFileName(year int) string {
	return fmt.Sprintf("dataset_maestro_enigh_%d.csv", year)
}

// Exporter receives the family-structure summary once both outputs are on disk.
type Exporter interface {
	Name() string
	Export(ctx context.Context, year int, summary *dataset.Table, dist family.Distribution) error
}

// Options configures one run.
type Options struct {
	Year      int
	InputDir  string
	OutputDir string
	Exporters []Exporter
}

// Shape is a (rows, columns) pair.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func shapeOf(t *dataset.Table) Shape {
	r, c := t.Shape()
	return Shape{Rows: r, Cols: c}
}

// Result reports what a run read, joined and wrote.
type Result struct {
	Year            int                 `json:"year"`
	Individuals     Shape               `json:"individuals"`
	Households      Shape               `json:"households"`
	Dwellings       Shape               `json:"dwellings"`
	Heads           int                 `json:"heads"`
	Summary         Shape               `json:"summary"`
	AfterHouseholds Shape               `json:"after_households"`
	Master          Shape               `json:"master"`
	HeadJoin        dataset.JoinStats   `json:"head_join"`
	HouseholdJoin   dataset.JoinStats   `json:"household_join"`
	DwellingJoin    dataset.JoinStats   `json:"dwelling_join"`
	Duplicates      int                 `json:"duplicates"`
	Distribution    family.Distribution `json:"distribution"`
	SummaryPath     string              `json:"summary_path"`
	MasterPath      string              `json:"master_path"`
	Duration        time.Duration       `json:"duration"`
}

// Integrator runs the integration step.
type Integrator struct {
	merger *dataset.Merger
	logger zerolog.Logger
}

// New creates an integrator logging under the "integration" component.
func New() *Integrator {
	return &Integrator{
		merger: dataset.NewMerger(),
		logger: logging.Component("integration"),
	}
}

// Run executes the whole step. It stops at the first error; nothing is written
// unless every input loads and both joins succeed.
func (i *Integrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Year <= 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid year %d", opts.Year))
	}

	i.logger.Info().Str("input_dir", opts.InputDir).Str("output_dir", opts.OutputDir).Int("year", opts.Year).Msg("starting integration")

	in, err := i.load(ctx, opts.InputDir)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Year:        opts.Year,
		Individuals: shapeOf(in.individuals),
		Households:  shapeOf(in.households),
		Dwellings:   shapeOf(in.dwellings),
	}

	if err := requireColumns(in.households, householdKeys...); err != nil {
		return nil, err
	}
	if err := requireColumns(in.dwellings, dwellingKeys...); err != nil {
		return nil, err
	}

	summary, heads, headJoin, err := i.buildSummary(in.individuals)
	if err != nil {
		return nil, err
	}
	res.Heads = heads
	res.HeadJoin = headJoin
	res.Summary = shapeOf(summary)
	res.Distribution = distributionOf(summary)
	i.logDistribution(res.Distribution)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	master, err := i.buildMaster(summary, in.households, in.dwellings, opts.Year, res)
	if err != nil {
		return nil, err
	}

	res.SummaryPath = filepath.Join(opts.OutputDir, SummaryFileName(opts.Year))
	if err := dataset.WriteCSVFile(res.SummaryPath, summary); err != nil {
		return nil, err
	}
	i.logger.Info().Str("path", res.SummaryPath).Msg("family structure written")

	res.MasterPath = filepath.Join(opts.OutputDir, MasterFileName(opts.Year))
	if err := dataset.WriteCSVFile(res.MasterPath, master); err != nil {
		return nil, err
	}
	i.logger.Info().Str("path", res.MasterPath).Int("rows", res.Master.Rows).Int("cols", res.Master.Cols).Msg("master dataset written")

	for _, exp := range opts.Exporters {
		if err := exp.Export(ctx, opts.Year, summary, res.Distribution); err != nil {
			return nil, errors.Wrapf(err, "export %s", exp.Name())
		}
		i.logger.Info().Str("exporter", exp.Name()).Msg("summary exported")
	}

	res.Duration = time.Since(start)
	return res, nil
}

type inputs struct {
	individuals *dataset.Table
	households  *dataset.Table
	dwellings   *dataset.Table
}

// load reads the three inputs concurrently; the first failure cancels the rest.
func (i *Integrator) load(ctx context.Context, dir string) (*inputs, error) {
	var in inputs
	targets := []struct {
		file string
		dst  **dataset.Table
	}{
		{IndividualsFile, &in.individuals},
		{HouseholdsFile, &in.households},
		{DwellingsFile, &in.dwellings},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, err := dataset.ReadCSV(filepath.Join(dir, t.file))
			if err != nil {
				return err
			}
			rows, cols := table.Shape()
			i.logger.Info().Str("file", t.file).Int("rows", rows).Int("cols", cols).Msg("input loaded")
			*t.dst = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

type group struct {
	key         []string
	composition family.Composition
}

// buildSummary derives one row per (folioviv, foliohog) group with its
// composition flags, the head's sex and age and the family-structure label.
// Groups are ordered by key; a group with several heads yields one row per head.
// It also returns the number of head rows and the head join statistics.
func (i *Integrator) buildSummary(individuals *dataset.Table) (*dataset.Table, int, dataset.JoinStats, error) {
	var stats dataset.JoinStats

	pob, err := individuals.Select(personColumns...)
	if err != nil {
		return nil, 0, stats, errors.MalformedInput(individuals.Name, err)
	}
	const (
		viv = iota
		hog
		_
		rel
		sex
		age
	)

	groups := make(map[string]*group)
	var order []*group
	for _, row := range pob.Rows {
		// rows with a missing key belong to no group
		if dataset.CanonicalKey(row[viv]) == "" || dataset.CanonicalKey(row[hog]) == "" {
			continue
		}
		k := dataset.CanonicalKey(row[viv]) + "\x1f" + dataset.CanonicalKey(row[hog])
		g, ok := groups[k]
		if !ok {
			g = &group{key: []string{row[viv], row[hog]}}
			groups[k] = g
			order = append(order, g)
		}
		g.composition.Observe(family.Member{
			Relationship: family.ParseCode(row[rel]),
			Age:          family.ParseCode(row[age]),
		})
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dataset.CompareKeys(order[a].key, order[b].key) < 0
	})

	rows := make([][]string, len(order))
	for n, g := range order {
		rows[n] = []string{
			g.key[0], g.key[1],
			family.Flag(g.composition.Partner),
			family.Flag(g.composition.Children),
			family.Flag(g.composition.OtherAdults),
		}
	}
	composition := dataset.NewTable("estructura", []string{ColFolioviv, ColFoliohog, ColPartner, ColChildren, ColOtherAdults}, rows)

	heads := pob.
		Filter(func(row []string) bool { return family.IsHead(family.ParseCode(row[rel])) }).
		Rename(map[string]string{ColSex: ColHeadSex, ColAge: ColHeadAge})
	heads, err = heads.Select(ColFolioviv, ColFoliohog, ColHeadSex, ColHeadAge)
	if err != nil {
		return nil, 0, stats, errors.Wrap(err, "select head columns")
	}
	headCount, _ := heads.Shape()
	i.logger.Debug().Int("groups", len(order)).Int("heads", headCount).Msg("households grouped")

	summary, stats, err := i.merger.LeftJoin(composition, heads, dataset.JoinSpec{Keys: householdKeys})
	if err != nil {
		return nil, 0, stats, errors.Wrap(err, "join heads")
	}
	if stats.UnmatchedLeft > 0 || stats.FanOutRows > 0 {
		i.logger.Warn().Int("without_head", stats.UnmatchedLeft).Int("extra_heads", stats.FanOutRows).Msg("households without exactly one head")
	}

	partner, children, headSex := summary.Index(ColPartner), summary.Index(ColChildren), summary.Index(ColHeadSex)
	summary.Derive(ColStructure, func(row []string) string {
		return string(family.Classify(family.Profile{
			HeadSex:     family.ParseCode(row[headSex]),
			HasPartner:  row[partner] == "1",
			HasChildren: row[children] == "1",
		}))
	})
	summary.Name = "estructura_familiar"

	return summary, headCount, stats, nil
}

// buildMaster joins households on (folioviv, foliohog) and dwellings on folioviv
// alone, counts key duplicates and stamps the survey year. Dwelling attributes
// repeat across the sub-households of a dwelling.
func (i *Integrator) buildMaster(summary, households, dwellings *dataset.Table, year int, res *Result) (*dataset.Table, error) {
	withHouseholds, stats, err := i.merger.LeftJoin(summary, households, dataset.JoinSpec{Keys: householdKeys})
	if err != nil {
		return nil, errors.Wrap(err, "join households")
	}
	res.HouseholdJoin = stats
	res.AfterHouseholds = shapeOf(withHouseholds)
	i.logger.Info().Int("rows", res.AfterHouseholds.Rows).Int("cols", res.AfterHouseholds.Cols).Int("unmatched", stats.UnmatchedLeft).Msg("joined households")

	master, stats, err := i.merger.LeftJoin(withHouseholds, dwellings, dataset.JoinSpec{Keys: dwellingKeys})
	if err != nil {
		return nil, errors.Wrap(err, "join dwellings")
	}
	res.DwellingJoin = stats
	i.logger.Info().Int("rows", len(master.Rows)).Int("cols", len(master.Headers)).Int("unmatched", stats.UnmatchedLeft).Msg("joined dwellings")

	dups, err := dataset.CountDuplicates(master, householdKeys...)
	if err != nil {
		return nil, errors.Wrap(err, "count duplicates")
	}
	res.Duplicates = dups
	i.logger.Info().Int("duplicates", dups).Msg("duplicate check")

	master.AddConstant(ColYear, strconv.Itoa(year))
	master.Name = "dataset_maestro_enigh"
	res.Master = shapeOf(master)
	return master, nil
}

func (i *Integrator) logDistribution(dist family.Distribution) {
	ev := i.logger.Info().Int("total", dist.Total)
	for _, c := range dist.Counts {
		ev = ev.Int(string(c.Structure), c.Households)
	}
	ev.Msg("family structure distribution")
}

func distributionOf(summary *dataset.Table) family.Distribution {
	col, err := summary.Column(ColStructure)
	if err != nil {
		return family.Tally(nil)
	}
	labels := make([]family.Structure, len(col))
	for n, c := range col {
		labels[n] = family.Structure(c)
	}
	return family.Tally(labels)
}

// DistributionOf tallies the labels of a summary table read back from disk.
func DistributionOf(summary *dataset.Table) (family.Distribution, error) {
	if !summary.Has(ColStructure) {
		return family.Distribution{}, errors.InvalidInput(fmt.Sprintf("%s has no %s column", summary.Name, ColStructure))
	}
	return distributionOf(summary), nil
}

func requireColumns(t *dataset.Table, cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return errors.MalformedInput(t.Name, fmt.Errorf("key column %q not found", c))
		}
	}
	return nil
}
