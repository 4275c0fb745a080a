// Package sim provides the time-stepped LDAR (leak detection and repair)
// simulation engine.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - emission.go: Emission lifecycle (inactive → active → repaired/expired)
//   - company.go: Crew dispatch, detection and tagging for one LDAR method
//   - program.go: The daily loop tying sites, companies and the clock together
//
// # Architecture
//
// The sim package holds the domain model and the daily loop; supporting
// pieces live in sub-packages:
//   - sim/sensor/: Detection and quantification models
//   - sim/dist/: Seeded samplers for rates, lifetimes, delays and travel times
//   - sim/geo/: Distances, home-base selection and k-means territories
//   - sim/weather/: Deployment conditions (constant or gridded)
//   - sim/trace/: Dispatch decision recording
//   - sim/study/: Replicate orchestration across programs and seeds
//   - sim/output/: SQLite result sink
//
// # Daily Order
//
// Each simulated day runs, in order: per-site emission activation and
// update, aggregation, per-company dispatch (companies in configuration
// order, crews in index order), timeseries recording, clock advance.
// Every random draw comes from a PartitionedRNG stream owned by the
// replicate, so a seed fully determines the run.
//
// # Key Interfaces
//
//   - sensor.Sensor: rate detection and measurement at a granularity
//   - SchedulingPolicy: pick the next due site for a crew
//   - weather.Lookup: conditions at a location on a day
package sim
