/*
Package dsl provides a fluent builder for conversational flows.

It lets developers define flows in Go instead of JSON or YAML exported from the
visual editor. Nodes added through the sequence methods (Start, Message, Media,
Delay, Input, End) are linked in order automatically; Add and Go build any
other shape.

Example usage:

	def, err := dsl.New("newsletter").
		Name("Newsletter signup").
		Start().Welcome("Hey! 👋").NoWait().
		Message("Want our weekly tips?").
		Input("ask-email", domain.InputEmail).Label("Your email").SaveTo("email").Required().
		End("You're in!").Redirect("example.com/welcome").
		Build()
*/
package dsl
