package main

import (
	"flag"
	"log"
	"os"

	sw "nickandperla.net/shipwright"

	"github.com/BurntSushi/toml"
)

/*
	Read tool + evolution configs (TOML)

	From unmarshaled configs:
		Build the L-system from the grammar directory
		Derive N candidates
		Classify, evaluate, and append them to the candidate log

*/

var toolConfigPath *string = flag.String("config", "./config.toml", "The config file for shipwright tools to use. Defaults to './config.toml'")
var evoConfigPath *string = flag.String("evoconfig", "./evo.toml", "The evolution config holding the grammar and solver sections. Defaults to './evo.toml'")
var count *int = flag.Int("n", 10, "How many candidates to derive")
var seed *int64 = flag.Int64("seed", 0, "Random seed; 0 uses the current time")

func main() {
	flag.Parse()

	toolConfig := loadToolConfig(*toolConfigPath)
	evoConfig := loadEvoConfig(*evoConfigPath)

	toolConfig.ApplyLogLevel()
	if *seed != 0 {
		sw.InitRNG(*seed)
	} else {
		sw.InitRNG(evoConfig.Seed)
	}

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

	candidates, err := ls.GenerateCandidates(evoConfig.Grammar.Modules, *count)
	if err != nil {
		log.Fatalf("Failed to derive candidates: %v", err)
	}
	ls.SubdivideSolutions(candidates)

	logPath := toolConfig.CandLogPath
	if logPath == "" {
		logPath = "./candidates.log"
	}
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to open candidate log [%s]: %v", logPath, err)
	}
	defer out.Close()

	candLog := sw.NewCandidateLog(out)
	written := 0
	for _, cs := range candidates {
		if _, err := evaluator.Evaluate(cs); err != nil {
			log.Printf("Skipping unevaluable candidate: %v", err)
			continue
		}
		if err := candLog.Write(cs); err != nil {
			log.Fatalf("Failed to write candidate log: %v", err)
		}
		written++
	}
	log.Printf("Wrote %d/%d candidates to %s", written, *count, logPath)
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
