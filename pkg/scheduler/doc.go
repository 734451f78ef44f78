/*
Package scheduler provides the delayed-transition primitives of the engine.

A Group is an arena of timers owned by one session: every scheduled transition
belongs to it, and Cancel or Close disposes all of them atomically. The Clock
interface lets tests replace wall time with FakeClock and drive conversations
deterministically.
*/
package scheduler
