// Package tierstate persists the placement record of each collection:
// which tier it lives in, how often it is accessed, and whether it is
// pinned against automatic demotion.
//
// Two implementations are provided. MemoryStore keeps records in process
// memory and suits single-node deployments and tests. DynamoStore keeps
// them in a DynamoDB table so placement survives restarts.
package tierstate
