/*
Package flowchat runs link-in-bio conversational flows.

A flow is a chain of typed nodes (start, message, media, delay, input, end)
authored in a visual editor. The engine interprets it as a timed chat with one
visitor per session: it paces bot messages with a typing indicator, waits at
interaction gates for free text, shows forms for Input nodes, and reports
leads through a narrow tracking interface.

# Concept

The Definition is immutable and shared by every session. Each Session owns its
state and its timers; every scheduled transition belongs to the session and is
cancelled together on Restart or Close. Hosts (terminal, HTTP, MCP) read the
timeline and drive the conversation through a small set of operations:
Start, SendFreeText, SubmitInput, Restart and Close.

# Usage

	def, err := dsl.New("welcome").
		Start().NoWait().
		Message("Hi! What's your email?").NoWait().
		Input("ask-email", domain.InputEmail).SaveTo("email").Required().
		End("Thanks, talk soon!").
		Build()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := flowchat.New(def, flowchat.WithLeadTracker(tracker))
	if err != nil {
		log.Fatal(err)
	}

	sess, err := eng.Open(ctx, flowchat.SessionOptions{})
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	_ = sess.Start(ctx)
*/
package flowchat
