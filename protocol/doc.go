// Package protocol implements the Redis Serialization Protocol (RESP2)
// spoken between rediskv and its clients.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	writer := protocol.NewWriter(conn)
//	for {
//		cmd, err := reader.ReadCommand()
//		if err != nil {
//			break
//		}
//		// Execute cmd, then reply
//		_ = writer.WriteOK()
//		_ = writer.Flush()
//	}
//
// The package supports all RESP2 data types:
//   - Simple Strings
//   - Errors
//   - Integers
//   - Bulk Strings
//   - Arrays
//   - Null values
//
// Inline commands, the plain-text form typed into a telnet session, are
// accepted by ReadCommand as well.
package protocol
