package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	sw "nickandperla.net/shipwright"

	"github.com/BurntSushi/toml"
)

/*
	Read tool + evolution configs (TOML)

	From the given candidate string:
		Build the L-system, translate and fill the structure
		Wrap the ship in an armor hull when [hull] is enabled
		Fetch base values from the game bridge
		Ship the block placements, optionally one at a time

*/

var toolConfigPath *string = flag.String("config", "./config.toml", "The config file for shipwright tools to use. Defaults to './config.toml'")
var evoConfigPath *string = flag.String("evoconfig", "./evo.toml", "The evolution config holding the grammar sections. Defaults to './evo.toml'")
var candidate *string = flag.String("candidate", "", "The high-level candidate string to place")
var candidateFile *string = flag.String("file", "", "Read the candidate string from this file instead (first line)")
var timeout *time.Duration = flag.Duration("timeout", 30*time.Second, "Deadline for the whole placement conversation")
var sequential *bool = flag.Bool("sequential", true, "Place blocks one call at a time")
var creative *bool = flag.Bool("creative", true, "Toggle the game into creative mode first")
var gridScale *float64 = flag.Float64("scale", 1.0, "World units per grid cell")

func main() {
	flag.Parse()

	toolConfig := loadToolConfig(*toolConfigPath)
	evoConfig := loadEvoConfig(*evoConfigPath)
	toolConfig.ApplyLogLevel()

	hlString := *candidate
	if *candidateFile != "" {
		data, err := os.ReadFile(*candidateFile)
		if err != nil {
			log.Fatalf("Unable to read candidate file: %v", err)
		}
		hlString, _, _ = strings.Cut(string(data), "\n")
	}
	if hlString == "" {
		log.Fatalf("No candidate string given; use -candidate or -file")
	}

	ls, err := sw.BuildLSystem(&evoConfig)
	if err != nil {
		log.Fatalf("Failed to build L-system: %v", err)
	}

	cs := sw.NewCandidateSolution(hlString)
	if err := ls.SetStructure(cs); err != nil {
		log.Fatalf("Failed to build structure: %v", err)
	}
	st := cs.Structure()
	log.Printf("Structure ready: %d blocks, dims %s", st.BlockCount(), st.Dims())

	if toolConfig.Hull != nil && toolConfig.Hull.Enabled {
		hb, err := sw.NewHullBuilder(toolConfig.Hull)
		if err != nil {
			log.Fatalf("Failed to create hull builder: %v", err)
		}
		added, err := hb.AddExternalHull(st)
		if err != nil {
			log.Fatalf("Failed to build the armor hull: %v", err)
		}
		log.Printf("Hull added %d armor blocks, dims now %s", added, st.Dims())
	}

	if toolConfig.Bridge == nil {
		log.Fatalf("Tool config has no [bridge] section")
	}
	bridge := sw.NewBridge(toolConfig.Bridge)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *creative {
		if err := bridge.ToggleGamemode(ctx, true); err != nil {
			log.Fatalf("Failed to toggle gamemode: %v", err)
		}
	}

	base, err := bridge.GetBaseValues(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch base values: %v", err)
	}
	log.Printf("Placing at %v", base.Position)

	if err := bridge.PlaceBlocks(ctx, st, base, *gridScale, *sequential); err != nil {
		log.Fatalf("Failed to place blocks: %v", err)
	}
	log.Printf("Placed %d blocks", st.BlockCount())
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
