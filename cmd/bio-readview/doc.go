// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
bio-readview computes per-position read coverage, mismatches and insertions
over one or two indexed BAM files, split by alignment classification
(perfect, best match, common) and strand.

In batch mode it runs one query per region and writes a file per region:

	bio-readview -region chr2:1000-2000 -out out-prefix ref.fa my.bam
	bio-readview -bed regions.bed -format tsv-bgz -diffs ref.fa my.bam

Given two BAM files, coverage is also split by track, with the first file as
track 1 and the second as track 2.

With -serve, it answers the same queries over HTTP instead; track ids are the
1-based positions of the BAM arguments:

	bio-readview -serve :8080 ref.fa a.bam b.bam
	curl 'localhost:8080/tracks/1/coverage?region=chr2:1000-2000&other=2'
*/
package main
