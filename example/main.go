package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"memlayout/coloransi"
	"memlayout/inspect"
	"memlayout/marker"
	"memlayout/memory"
	"memlayout/process"
	"memlayout/process/memory_map"
	"memlayout/process_blob"
	"memlayout/state"
)

// playerData is the per-player block a unit points at.
var playerData = marker.NewStruct("PlayerData").
	Field("Name", marker.Array(marker.Char, 16)).
	Field("QuestPath", marker.Pointer(marker.Void())).
	Build()

// unitAny is a generic game unit. Data is followed, ActPtr is only printed.
var unitAny = marker.NewStruct("UnitAny").
	Field("Type", marker.U32).
	Field("TxtFileNo", marker.U32).
	Field("UnitID", marker.U32).
	MutField("Mode", marker.U32).
	Field("Data", marker.Pointer(playerData)).
	Field("Act", marker.U32).
	Field("ActPtr", marker.Pointer(marker.Void())).
	Field("Seed", marker.Array(marker.U32, 2)).
	Field("Next", marker.Pointer(marker.This())).
	Derive("IsPlayer", func(r marker.FieldReader) (any, error) {
		t, err := r.Get("Type")
		if err != nil {
			return nil, err
		}
		return t == uint64(0), nil
	}).
	Build()

func main() {
	name := flag.String("process", "D2R.exe", "Target process name")
	dump := flag.String("dump", "", "Read a saved dump instead of a live process")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: example [-process NAME | -dump DIR] UNIT_ADDRESS")
		os.Exit(2)
	}
	raw, err := strconv.ParseUint(flag.Arg(0), 0, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad address: %v\n", err)
		os.Exit(2)
	}
	unitAddr := process.ProcessMemoryAddress(raw)

	// 1. Bind a State to the target
	var backend process.Backend = state.NativeBackend()
	if *dump != "" {
		b, proc, err := process_blob.LoadDump(*dump)
		if err != nil {
			fmt.Printf("Failed to load dump: %v\n", err)
			return
		}
		backend, *name = b, proc.Name
	}
	st := state.New(backend, state.Options{ProcessName: *name})
	if err := st.Load(); err != nil {
		fmt.Printf("Failed to open %s: %v\n", *name, err)
		return
	}
	defer st.Unload()

	// 2. View the unit. The layout is compiled for the target's pointer width.
	unit, err := memory.StructAt(st, unitAddr, unitAny)
	if err != nil {
		fmt.Printf("Failed to read unit: %v\n", err)
		return
	}

	// 3. Access the data
	id, err := unit.Get("UnitID")
	if err != nil {
		fmt.Printf("Failed to read unit: %v\n", err)
		return
	}
	fmt.Printf("Unit ID: %d\n", id)

	if isPlayer, _ := unit.Derived("IsPlayer"); isPlayer == true {
		if err := printPlayer(unit); err != nil {
			fmt.Printf("Failed to read player: %v\n", err)
		}
	}

	// 4. Print the structure with pointer validation
	regions, _ := st.Regions()
	coloransi.Detect(os.Stdout)
	inspect.Struct(coloransi.Stdout(), unit, inspect.WithPointerCheck(func(addr process.ProcessMemoryAddress) bool {
		r := memory_map.GetMemoryRegionForAddress(uint64(addr), regions)
		return r != nil && r.IsReadable()
	}))
}

// printPlayer follows Data and prints the player's name.
func printPlayer(unit memory.Struct) error {
	data, err := unit.Field("Data")
	if err != nil {
		return err
	}
	ptr, err := data.Pointer()
	if err != nil {
		return err
	}
	player, err := ptr.Deref()
	if err != nil {
		return err
	}
	s, err := player.Struct()
	if err != nil {
		return err
	}
	name, err := s.Field("Name")
	if err != nil {
		return err
	}
	text, err := name.Bytes()
	if err != nil {
		return err
	}
	fmt.Printf("Player Name: %s\n", cstring(text))
	return nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
