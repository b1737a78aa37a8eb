/*
Package stream encodes run events as a line-oriented data stream.

Every frame is "<tag>:<payload>\n" where payload is JSON:

	0  text increment, a JSON string
	9  tool call announced: toolCallId, toolName, args
	a  tool call resolved: toolCallId, toolName, args, result
	8  metadata, a JSON array
	e  finish: finishReason, isContinued, optional usage
	3  error, a JSON string ("d" is accepted when decoding)

A stream ends with exactly one e or 3 frame. Readers skip unknown tags and
treat a stream closed without e as an incomplete turn.
*/
package stream
