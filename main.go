// Command articlescraper fetches every article listed in a spreadsheet and
// writes the titles and body text back next to each URL.
package main

import "github.com/JakeFAU/articlescraper/cmd"

func main() {
	cmd.Execute()
}
