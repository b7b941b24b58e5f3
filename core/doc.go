// Package core defines the domain contracts shared by every roundtable
// component: conversations, messages, artifacts, agent memories, the static
// Agent definition, the AgentClient capability interface, store interfaces
// and the error taxonomy.
//
// Concrete implementations live elsewhere (client/..., session, artifact,
// memory, storage/...) so higher layers such as the engine depend only on
// this package and never on a vendor SDK or a storage driver.
package core
