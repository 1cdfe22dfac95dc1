// Package ddbui serves a JSON API for browsing a single-table layout during
// local development.
//
// It allows users to:
//   - View the table, its models, partitions and GSIs with their key patterns
//   - Page through the items of a model, a partition or a GSI
//   - Create, read and delete items by model
//
// Every request goes through a ddbsdk.Client, so encrypted fields are shown
// decrypted when the client has an encrypter.
//
// # Usage
//
//	tablekit ui -addr :8080
//
// Routes:
//
//	GET    /api/schema
//	GET    /api/models/{model}/items?limit=25&cursor=...
//	POST   /api/models/{model}/items[?unique=true]
//	GET    /api/models/{model}/item?{field}={value}...
//	DELETE /api/models/{model}/item?{field}={value}...
//	GET    /api/partitions/{partition}/items?{field}={value}...&reverse=true
//	GET    /api/gsis/{gsi}/items?value=...
package ddbui
