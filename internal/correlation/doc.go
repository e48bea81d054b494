// Package correlation turns asynchronous request events into bounded,
// synchronous-looking calls between modules.
//
// A caller asks for data it does not own by registering a correlation id,
// publishing a RequestEvent and waiting on the returned Handle. The owning
// module answers through a Replier, either by resolving the Registry directly
// (same process) or by writing "<kind>_data_<id>" into a ResultStore whose
// writes are bridged back to the Registry. A wait never outlives its timeout;
// on expiry the caller gets an empty Result and the registry entry is evicted.
//
// Requester wraps the whole register/publish/await/decode cycle for one kind
// and payload type.
package correlation
