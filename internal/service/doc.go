package service

// Package service glues the configuration to the orchestration: it picks
// the job backend, opens the optional capture recorder and drives one
// diagnostic invocation through its pool, or keeps doing so on a
// schedule in watch mode.
//
// Data flow:
//
//   Run(cfg, invocation)
//       |
//   factory (relay | redfish) -> diag.New  one launch attempt per target
//       |                         |
//       |                     PollUntilLaunched   launch acknowledgements
//       |                     PollUntilComplete   run-phase polling
//       |                         |
//   report.FromPool <-------- Cleanup            best-effort remote deletes
//
// Invariants:
//   - No per-target failure ever surfaces as an error; it is a terminal
//     task state in the summary.
//   - The capture store, when enabled, observes every wire payload but
//     never influences the run.
