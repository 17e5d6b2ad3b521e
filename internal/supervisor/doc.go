// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

/*
Package supervisor runs the long-lived Rowlens services under suture v4.

The tree has three layers so a failing layer restarts on its own:

	RootSupervisor ("rowlens")
	├── StorageSupervisor ("storage-layer")
	│   └── StoreMaintenanceService (if the store implements store.Maintainer)
	├── TrainingSupervisor ("training-layer")
	│   └── TrainingService (if training is enabled and a source is configured)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A training run that keeps failing (the source is down, say) is backed off by
suture while the API keeps serving the stored models.

Supervisor events go through sutureslog into the zerolog process logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
