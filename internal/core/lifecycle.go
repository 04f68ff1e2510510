package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module opts into each lifecycle step by implementing its interface.
// LoadModule drives Configure, Provision and Validate; App drives Start and
// Stop.

// Configurable receives the module's section of the config file. It is
// skipped when the file has no section for the module.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, opens resources and wires services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned module without side effects.
type Validator interface {
	Validate() error
}

// Starter launches background work such as listeners and schedulers.
type Starter interface {
	Start() error
}

// Stopper releases what Provision or Start acquired. Stop runs in reverse
// load order, once per module.
type Stopper interface {
	Stop(ctx context.Context) error
}
