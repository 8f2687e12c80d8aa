package main

import (
	"flag"
	"log"
	"math/rand"
	"os"

	sw "nickandperla.net/shipwright"

	"github.com/BurntSushi/toml"
)

/*
	Read tool + evolution configs (TOML)

	From unmarshaled configs:
		Build the L-system, evaluator and genetic operators
		Connect/Initialize DB, create a run row
		Evolve with FI-2Pop or MAP-Elites, persisting each generation
		Finalize the run with its best candidate

*/

var toolConfigPath *string = flag.String("config", "./config.toml", "The config file for shipwright tools to use. Defaults to './config.toml'")
var evoConfigPath *string = flag.String("evoconfig", "./evo.toml", "The evolution config. Defaults to './evo.toml'")
var label *string = flag.String("label", "", "A label for this run, stored with it")

func main() {
	flag.Parse()

	toolConfig := loadToolConfig(*toolConfigPath)
	evoConfig := loadEvoConfig(*evoConfigPath)

	toolConfig.ApplyLogLevel()
	sw.InitRNG(evoConfig.Seed)

	ls, err := sw.BuildLSystem(&evoConfig)
	if err != nil {
		log.Fatalf("Failed to build L-system: %v", err)
	}

	ec := evoConfig.Evaluator
	if ec == nil {
		ec = &sw.EvaluatorConfig{}
	}
	ec.SoftBonusNn = ls.Constraints.SoftCount()
	evaluator, err := sw.NewEvaluator(ec)
	if err != nil {
		log.Fatalf("Failed to build evaluator: %v", err)
	}

	var rnd *rand.Rand
	if evoConfig.Seed != 0 {
		rnd = rand.New(rand.NewSource(evoConfig.Seed))
	}
	ops := sw.NewGeneticOps(ls, evoConfig.Evo, rnd)

	persist, err := sw.NewPersistence(toolConfig.Persistence)
	if err != nil {
		log.Fatalf("Failed to create or initialize Persistence: %v", err)
	}
	defer persist.Shutdown()

	method := evoConfig.Method
	if method == "" {
		method = "fi2pop"
	}
	runID, err := persist.CreateRun(&sw.Run{Label: *label, Solver: method, Seed: evoConfig.Seed})
	if err != nil {
		log.Fatalf("Failed to create run: %v", err)
	}
	log.Printf("Created run %d (%s)", runID, method)

	generations := 0
	if evoConfig.Evo != nil {
		generations = evoConfig.Evo.Generations
	}

	var best *sw.CandidateSolution
	switch method {
	case "fi2pop":
		best = runFI2Pop(ls, evaluator, ops, &evoConfig, persist, runID, generations)
	case "mapelites":
		best = runMAPElites(ls, evaluator, ops, &evoConfig, persist, runID, generations)
	default:
		log.Fatalf("Unknown method [%s]; want fi2pop or mapelites", method)
	}

	if err := persist.FinishRun(runID, generations, best); err != nil {
		log.Fatalf("Failed to finalize run: %v", err)
	}
	if best != nil {
		log.Printf("Run %d finished; best fitness %.4f: %s", runID, best.CFitness, best.String)
	} else {
		log.Printf("Run %d finished with no feasible candidate", runID)
	}
}

func runFI2Pop(ls *sw.LSystem, evaluator *sw.Evaluator, ops *sw.GeneticOps, evoConfig *sw.EvolutionConfig, persist *sw.Persistence, runID uint, generations int) *sw.CandidateSolution {
	engine := sw.NewFI2Pop(ls, evaluator, ops, evoConfig.Evo, evoConfig.Grammar.Modules)
	if err := engine.Initialize(); err != nil {
		log.Fatalf("Failed to initialize populations: %v", err)
	}
	saveGeneration(persist, evaluator, runID, 0, append(engine.Feasible, engine.Infeasible...))

	for gen := 0; gen < generations; gen++ {
		if err := engine.Step(gen); err != nil {
			log.Fatalf("Generation %d failed: %v", gen, err)
		}
		saveGeneration(persist, evaluator, runID, gen+1, append(engine.Feasible, engine.Infeasible...))
	}
	return engine.Best()
}

func runMAPElites(ls *sw.LSystem, evaluator *sw.Evaluator, ops *sw.GeneticOps, evoConfig *sw.EvolutionConfig, persist *sw.Persistence, runID uint, generations int) *sw.CandidateSolution {
	engine, err := sw.NewMAPElites(ls, evaluator, ops, evoConfig.Evo, evoConfig.MapElites, evoConfig.Grammar.Modules)
	if err != nil {
		log.Fatalf("Failed to build archive: %v", err)
	}
	if err := engine.Initialize(); err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	}
	saveGeneration(persist, evaluator, runID, 0, archiveContents(engine))

	for gen := 0; gen < generations; gen++ {
		if err := engine.Step(gen); err != nil {
			log.Fatalf("Generation %d failed: %v", gen, err)
		}
		saveGeneration(persist, evaluator, runID, gen+1, archiveContents(engine))
	}
	return engine.Best()
}

func archiveContents(engine *sw.MAPElites) []*sw.CandidateSolution {
	var out []*sw.CandidateSolution
	for _, row := range engine.Bins() {
		for _, bin := range row {
			out = append(out, bin.Feasible...)
			out = append(out, bin.Infeasible...)
		}
	}
	return out
}

func saveGeneration(persist *sw.Persistence, evaluator *sw.Evaluator, runID uint, gen int, pool []*sw.CandidateSolution) {
	var candidates []*sw.CandidateSolution
	var evals []*sw.Evaluation
	for _, cs := range pool {
		eval, err := evaluator.Evaluate(cs)
		if err != nil {
			log.Printf("Skipping unevaluable candidate at generation %d: %v", gen, err)
			continue
		}
		candidates = append(candidates, cs)
		evals = append(evals, eval)
	}
	if err := persist.SaveGeneration(runID, gen, candidates, evals); err != nil {
		log.Fatalf("Failed to persist generation %d: %v", gen, err)
	}
	if metrics, err := persist.QueryMetrics(runID, gen); err == nil {
		log.Printf("Generation %d: feasible=%d infeasible=%d best=%.4f avg=%.4f",
			gen, metrics.FeasibleCount, metrics.InfeasibleCount, metrics.BestFitness, metrics.AvgFitness)
	}
}

func loadToolConfig(path string) sw.ToolConfig {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Unable to load shipwright config: %v", err)
	}
	defer f.Close()

	var conf sw.ToolConfig
	if _, err := toml.NewDecoder(f).Decode(&conf); err != nil {
		log.Fatalf("Failed to unmarshal tool config: %v", err)
	}
	return conf
}

func loadEvoConfig(path string) sw.EvolutionConfig {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Unable to load evolution config: %v", err)
	}
	defer f.Close()

	var conf sw.EvolutionConfig
	if _, err := toml.NewDecoder(f).Decode(&conf); err != nil {
		log.Fatalf("Failed to unmarshal evolution config: %v", err)
	}
	return conf
}
