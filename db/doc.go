// Package db resolves reads and writes of domain nodes for TenantDB.
//
// A Resolver turns node-level requests into SQL built by package sql and
// runs each of them in one unit of work on a ps.Transactional executor. The
// tenant of a unit of work is the database name of the schema the model
// belongs to; use core.Schema.ForTenant to address another tenant with the
// same datamodel.
//
// # Reads
//
//	r := db.NewResolver(persistence)
//	user, err := r.GetNodeByWhere(ctx, sql.NodeSelector{Field: email, Value: core.StringValue("a@b.c")}, fields)
//	if user == nil {
//	    // no such user
//	}
//
// Related nodes carry the id of the parent they were reached from, and
// scalar list values arrive grouped by owning node.
//
// # Requests
//
// Dispatcher accepts JSON-shaped Request values, as sent by the server and
// the C bindings, and answers with a Response:
//
//	d := db.NewDispatcher(r, schema)
//	resp := d.Execute(ctx, db.Request{Action: db.ActionFindOne, Model: "User",
//	    Where: &db.Selector{Field: "email", Value: "a@b.c"}})
//
// # Results
//
// QueryResult, CountResult and WriteResult print results for the command
// line. RenderNodes draws a node listing as a table.
package db
