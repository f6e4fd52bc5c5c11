// Detection engine: evaluates the fixed predicate table against every user's recent report and block history, and turns matches into suspensions and flags.
//
// A pass reads a consistent `now`, counts events per user over each window, and applies every matching predicate. Suspension writes are monotonic, so a pass never shortens an existing ban.
package engine
