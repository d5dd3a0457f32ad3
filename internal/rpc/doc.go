// Package rpc carries calls between partitions.
//
// A call names a target partition and a permission id. The Client resolves
// the permission to a capability claim (module, function, secret), sends a
// Request over a Transport, and maps the Response back to exactly one of
// three outcomes: a payload, Unauthorized, or a network error. Every failure
// is a *CrossCellError whose Kind tells "not allowed" from "unreachable" from
// "misconfigured".
//
// The receiving side is a Server: a registry of module.function handlers that
// checks each remote request's secret against the partition's grants before
// dispatch. Calls between modules of one partition go straight to the local
// Server and present no secret.
//
// Two transports are provided. Mesh connects Servers in one process.
// GRPCTransport speaks gRPC with a JSON codec; see RegisterGRPC for the
// server half.
package rpc
