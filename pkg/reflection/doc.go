/*
Package reflection implements the self-reflection pipeline, a fan-out/fan-in
graph over a user's journal.

	START --> fetch-context
	fetch-context --> theme
	fetch-context --> emotion
	fetch-context --> goal
	theme --> connector
	emotion --> connector
	goal --> connector
	connector --> END

fetch-context retrieves the thoughts closest to the message. The three
extractors then run concurrently, each making one structured-output model
call. On a thread that already ran, each extractor revises its previous result
with the new message as feedback. The connector proposes edges across
categories and keeps only new ones. The merged Graph has namespaced ids,
presentation types and layout coordinates, and every edge endpoint is one of
its nodes.
*/
package reflection
