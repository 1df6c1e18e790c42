// Package cli implements the DataBazaar command-line client.
//
// Usage:
//
//	dbz [-a url] [-t token] [-i seconds] [-c config.json] <command> [flags] [args]
//
// Commands:
//
//	keygen   [-passphrase] [-salt hex]                     print a new asset key
//	token    -user id [-ttl 24h]                           sign a bearer token (asks for the server secret)
//	upload   -name n -description d -price p [-category c] [-tags a,b] [-chunk-size n] [-key hex] <file>
//	download [-key hex] [-out path] <id>
//	list     [-owner o] [-category c] [-tag t] [-drafts]
//	mine
//	show     <id>
//	update   [-description d] [-price p] [-category c] [-tags a,b] <id>
//	delete   <id>
//
// When -key is omitted the key is read from the terminal without echo.
package cli
