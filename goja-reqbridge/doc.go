// Package gojareqbridge exposes [reqbridge] to JavaScript, running on a
// [goja.Runtime] driven by a goja_nodejs event loop.
//
// Requests are performed off the loop, by the dispatcher's worker, while
// callbacks are always called on the loop. While requests are pending, an
// interval drains completed requests, keeping the loop alive.
//
// # JavaScript API
//
// [Module.Enable] sets a global function:
//
//	reqwest({
//	    url: 'https://example.com/search',
//	    method: 'GET',
//	    parameters: {q: 'term'},
//	    headers: {Accept: 'application/json'},
//	    timeout: 10,
//	    success: function (status, body, headers) {},
//	    failed: function (reason, message) {},
//	});
//
// [Module.Require] provides the same function as a module, alongside a
// pending() function, and the FAILURE_MARKER constant.
package gojareqbridge
