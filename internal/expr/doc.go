/*
Package expr compiles the text of an expression into a typed tree of
ast nodes.

Compilation happens in a single pass. The lexer splits the text into tokens
and a recursive descent parser builds nodes as it goes, resolving the type of
every node immediately.

# Typing

Operators are typed by overload resolution against catalogs of operand
signatures. Literals are retyped to fit their context where the text allows
it, so the integer literal 5 compares directly with a uint8 and the string
"Red" with an enumeration.

# Members

Member access on the types an expression is declared over is unrestricted.
Method calls are limited to an allow-list of members of the predefined types
and to the methods of the declared types themselves.
*/
package expr
