// Package process exposes allow-listed local commands as model tools.
//
// Tools are declared in a YAML (or JSON) file:
//
//	tools:
//	  - name: word_count
//	    description: Count the words of a text
//	    command: sh
//	    args: ["-c", "printf %s \"$MINDGRAPH_ARG_TEXT\" | wc -w"]
//	    parameters:
//	      type: object
//	      properties:
//	        text: {type: string}
//	      required: [text]
package process
